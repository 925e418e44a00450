package api

import (
	"context"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

type Brands struct {
	client *Client
}

func (b *Brands) List(ctx context.Context, page Page) (core.Response, error) {
	return b.client.catalogDo(ctx, get("/product/202309/brands", page.apply(nil, 100)))
}

// Create registers a custom brand. Cached brand listings are dropped so the
// next List sees it.
func (b *Brands) Create(ctx context.Context, name string) (core.Response, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Response{}, badInput("brand_name is required", nil)
	}
	resp, err := b.client.Do(ctx, post("/product/202309/brands", map[string]any{"brand_name": name}, nil))
	if err != nil {
		return resp, err
	}
	if b.client.catalog != nil {
		_ = b.client.catalog.Invalidate(ctx, b.client.scope, get("/product/202309/brands", Page{}.apply(nil, 100)))
	}
	return resp, nil
}
