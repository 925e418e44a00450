package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

// Client groups the per-resource endpoints of one shop connection. Every
// call goes through the same signed executor.
type Client struct {
	caller  core.Caller
	catalog *CatalogCache
	scope   string

	Products   *Products
	Orders     *Orders
	Categories *Categories
	Brands     *Brands
	Warehouses *Warehouses
	Shops      *Shops
	Seller     *Seller
	Events     *Events
	Files      *Files
	Inventory  *Inventory
	SizeCharts *SizeCharts
}

type Option func(*Client)

// WithCatalogCache caches category, attribute and brand lookups. scope
// separates cache entries per connection.
func WithCatalogCache(cache *CatalogCache, scope string) Option {
	return func(c *Client) {
		c.catalog = cache
		c.scope = strings.TrimSpace(scope)
	}
}

func New(caller core.Caller, opts ...Option) *Client {
	c := &Client{caller: caller}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.Products = &Products{client: c}
	c.Orders = &Orders{client: c}
	c.Categories = &Categories{client: c}
	c.Brands = &Brands{client: c}
	c.Warehouses = &Warehouses{client: c}
	c.Shops = &Shops{client: c}
	c.Seller = &Seller{client: c}
	c.Events = &Events{client: c}
	c.Files = &Files{client: c}
	c.Inventory = &Inventory{client: c}
	c.SizeCharts = &SizeCharts{client: c}
	return c
}

// Do sends an arbitrary signed request, for endpoints without a wrapper.
func (c *Client) Do(ctx context.Context, req core.Request) (core.Response, error) {
	if c == nil || c.caller == nil {
		return core.Response{}, core.NewError(core.ErrorInternal, "tiktokshop: api client is not configured", nil)
	}
	return c.caller.Do(ctx, req)
}

// catalogDo serves req from the catalog cache when one is configured.
func (c *Client) catalogDo(ctx context.Context, req core.Request) (core.Response, error) {
	req.Catalog = true
	if c.catalog == nil {
		return c.Do(ctx, req)
	}
	return c.catalog.Fetch(ctx, c.scope, req, func(ctx context.Context) (core.Response, error) {
		return c.Do(ctx, req)
	})
}

// Page selects one page of a cursor-paginated listing.
type Page struct {
	Size  int
	Token string
}

func (p Page) apply(query map[string]any, defaultSize int) map[string]any {
	if query == nil {
		query = map[string]any{}
	}
	size := p.Size
	if size <= 0 {
		size = defaultSize
	}
	query["page_size"] = size
	if token := strings.TrimSpace(p.Token); token != "" {
		query["page_token"] = token
	}
	return query
}

func get(path string, query map[string]any) core.Request {
	return core.Request{Method: http.MethodGet, Path: path, Query: query}
}

func post(path string, body any, query map[string]any) core.Request {
	if body == nil {
		body = map[string]any{}
	}
	return core.Request{Method: http.MethodPost, Path: path, Body: body, Query: query}
}

func badInput(message string, metadata map[string]any) error {
	return core.NewError(core.ErrorBadInput, "tiktokshop: "+message, metadata)
}

func requireID(name string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", badInput(name+" is required", nil)
	}
	return value, nil
}

func requireIDs(name string, ids []string, max int) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, badInput(fmt.Sprintf("at least one %s is required", name), nil)
	}
	if max > 0 && len(out) > max {
		return nil, badInput(fmt.Sprintf("at most %d %s are allowed", max, name), map[string]any{
			"count": len(out),
		})
	}
	return out, nil
}

func copyMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
