package api

import (
	"context"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

type SizeCharts struct {
	client *Client
}

// Search finds size chart templates by ID or keyword.
func (s *SizeCharts) Search(ctx context.Context, ids []string, keyword string, page Page) (core.Response, error) {
	body := map[string]any{}
	if found, err := requireIDs("ids", ids, 0); err == nil {
		body["ids"] = found
	}
	if keyword = strings.TrimSpace(keyword); keyword != "" {
		body["keyword"] = keyword
	}
	req := post("/product/202407/sizecharts/search", body, page.apply(nil, 20))
	req.OmitShopCipher = true
	return s.client.Do(ctx, req)
}
