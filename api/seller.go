package api

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
)

type Seller struct {
	client *Client
}

func (s *Seller) Permissions(ctx context.Context) (core.Response, error) {
	req := get("/seller/202309/permissions", nil)
	req.OmitShopCipher = true
	return s.client.Do(ctx, req)
}
