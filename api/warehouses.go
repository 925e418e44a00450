package api

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
)

type Warehouses struct {
	client *Client
}

func (w *Warehouses) List(ctx context.Context) (core.Response, error) {
	return w.client.Do(ctx, get("/logistics/202309/warehouses", nil))
}
