package api

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
)

const (
	maxInventoryProductIDs = 100
	maxInventorySKUIDs     = 600
)

type Inventory struct {
	client *Client
}

// Search looks up stock by SKU when any SKU IDs are given, otherwise by
// product.
func (i *Inventory) Search(ctx context.Context, productIDs []string, skuIDs []string) (core.Response, error) {
	if skus, err := requireIDs("sku_ids", skuIDs, maxInventorySKUIDs); err == nil {
		return i.client.Do(ctx, post("/product/202309/inventory/search", map[string]any{"sku_ids": skus}, nil))
	} else if len(skuIDs) > maxInventorySKUIDs {
		return core.Response{}, err
	}
	products, err := requireIDs("product_ids", productIDs, maxInventoryProductIDs)
	if err != nil {
		return core.Response{}, badInput("product_ids or sku_ids is required", map[string]any{
			"product_ids": len(productIDs),
		})
	}
	return i.client.Do(ctx, post("/product/202309/inventory/search", map[string]any{"product_ids": products}, nil))
}

func (i *Inventory) Update(ctx context.Context, productID string, skus []map[string]any) (core.Response, error) {
	id, err := requireID("product_id", productID)
	if err != nil {
		return core.Response{}, err
	}
	if len(skus) == 0 {
		return core.Response{}, badInput("at least one sku is required", nil)
	}
	return i.client.Do(ctx, post(productPath(id, "inventory/update"), map[string]any{"skus": skus}, nil))
}
