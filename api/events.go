package api

import (
	"context"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

type WebhookStatus string

const (
	WebhookEnabled  WebhookStatus = "ENABLE"
	WebhookDisabled WebhookStatus = "DISABLE"
)

// WebhookSubscription is the registration sent to /event/202309/webhooks/update.
type WebhookSubscription struct {
	WebhookID  string
	URL        string
	EventTypes []string
	Status     WebhookStatus
}

type Events struct {
	client *Client
}

func (e *Events) List(ctx context.Context) (core.Response, error) {
	return e.client.Do(ctx, get("/event/202309/webhooks", nil))
}

func (e *Events) Update(ctx context.Context, subscription WebhookSubscription) (core.Response, error) {
	address := strings.TrimSpace(subscription.URL)
	if address == "" {
		return core.Response{}, badInput("webhook url is required", nil)
	}
	status := subscription.Status
	if status == "" {
		status = WebhookEnabled
	}
	if status != WebhookEnabled && status != WebhookDisabled {
		return core.Response{}, badInput("webhook status must be ENABLE or DISABLE", map[string]any{
			"status": string(status),
		})
	}
	body := map[string]any{
		"url":    address,
		"status": string(status),
	}
	if id := strings.TrimSpace(subscription.WebhookID); id != "" {
		body["webhook_id"] = id
	}
	if len(subscription.EventTypes) > 0 {
		body["event_types"] = append([]string(nil), subscription.EventTypes...)
	}
	return e.client.Do(ctx, post("/event/202309/webhooks/update", body, nil))
}

func (e *Events) Delete(ctx context.Context, webhookID string) (core.Response, error) {
	id, err := requireID("webhook_id", webhookID)
	if err != nil {
		return core.Response{}, err
	}
	return e.client.Do(ctx, post("/event/202309/webhooks/delete", map[string]any{"webhook_id": id}, nil))
}
