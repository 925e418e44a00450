package api

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
)

// Shops reads the authorization state of the app. None of these calls are
// shop scoped.
type Shops struct {
	client *Client
}

type AuthorizedShop struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Region     string `json:"region"`
	SellerType string `json:"seller_type"`
	Cipher     string `json:"cipher"`
	Code       string `json:"code"`
}

func (s AuthorizedShop) Metadata() core.ShopMetadata {
	return core.ShopMetadata{
		Cipher:     s.Cipher,
		ID:         s.ID,
		Code:       s.Code,
		Name:       s.Name,
		Region:     s.Region,
		SellerType: s.SellerType,
	}
}

func (s *Shops) Authorized(ctx context.Context) ([]AuthorizedShop, core.Response, error) {
	req := get("/authorization/202309/shops", nil)
	req.OmitShopCipher = true
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, resp, err
	}
	var payload struct {
		Shops []AuthorizedShop `json:"shops"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, resp, err
	}
	return payload.Shops, resp, nil
}

func (s *Shops) Active(ctx context.Context, page Page) (core.Response, error) {
	req := get("/authorization/202309/active_shops", page.apply(nil, 20))
	req.OmitShopCipher = true
	return s.client.Do(ctx, req)
}
