package api

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
)

type Orders struct {
	client *Client
}

// Search lists orders. Filters such as order_status or create_time_ge go in
// the body; paging goes in the query.
func (o *Orders) Search(ctx context.Context, filters map[string]any, page Page) (core.Response, error) {
	return o.client.Do(ctx, post("/order/202309/orders/search", copyMap(filters), page.apply(nil, 20)))
}

func (o *Orders) Get(ctx context.Context, orderID string) (core.Response, error) {
	id, err := requireID("order_id", orderID)
	if err != nil {
		return core.Response{}, err
	}
	return o.client.Do(ctx, post("/order/202309/orders/detail/query", map[string]any{
		"order_id_list": []string{id},
	}, nil))
}
