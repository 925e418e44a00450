package webhooks

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController decides whether an accepted event should be dispatched.
// TikTok Shop redelivers notifications until it sees a 2xx, so the same
// notification can arrive several times within a short window.
//
// Release forgets an event that Allow let through but that was never handed
// downstream, so the next redelivery is dispatched instead of coalesced.
type BurstController interface {
	Allow(ctx context.Context, event core.WebhookEvent) (BurstDecision, error)
	Release(ctx context.Context, event core.WebhookEvent) error
}

type BurstKeyExtractor func(event core.WebhookEvent) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

type DefaultBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	extractKey BurstKeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBurstController(opts BurstOptions) *DefaultBurstController {
	window := opts.Window
	if window <= 0 {
		window = time.Minute
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	extractKey := opts.ExtractKey
	if extractKey == nil {
		extractKey = NotificationKey
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DefaultBurstController{
		mode:       normalizeBurstMode(opts.Mode),
		window:     window,
		maxEntries: maxEntries,
		extractKey: extractKey,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

func (c *DefaultBurstController) Allow(_ context.Context, event core.WebhookEvent) (BurstDecision, error) {
	if c == nil || c.mode == BurstModeNone {
		return BurstDecision{Allow: true}, nil
	}
	key, ok := c.extractKey(event)
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return BurstDecision{Allow: true}, nil
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	c.entries[key] = now
	c.cleanup(now)
	if !exists || now.Sub(lastSeen) >= c.window {
		return BurstDecision{Allow: true}, nil
	}
	return BurstDecision{Allow: false, Metadata: map[string]any{
		"burst_mode":      string(c.mode),
		"burst_key":       key,
		"burst_window_ms": c.window.Milliseconds(),
		"coalesced":       true,
	}}, nil
}

func (c *DefaultBurstController) Release(_ context.Context, event core.WebhookEvent) error {
	if c == nil || c.mode == BurstModeNone {
		return nil
	}
	key, ok := c.extractKey(event)
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return nil
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *DefaultBurstController) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}

// NotificationKey keys events by shop and notification id. Events without
// a notification id are never coalesced.
func NotificationKey(event core.WebhookEvent) (string, bool) {
	id := strings.TrimSpace(event.NotificationID)
	if id == "" {
		return "", false
	}
	return strings.TrimSpace(event.ShopID) + ":" + strconv.Itoa(event.Type) + ":" + id, true
}

func normalizeBurstMode(mode BurstMode) BurstMode {
	if strings.EqualFold(strings.TrimSpace(string(mode)), string(BurstModeCoalesce)) {
		return BurstModeCoalesce
	}
	return BurstModeNone
}

var _ BurstController = (*DefaultBurstController)(nil)
