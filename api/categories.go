package api

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

const defaultCategoryVersion = "v1"

type Categories struct {
	client *Client
}

// List returns the shop's category tree, or the children of parentID.
func (c *Categories) List(ctx context.Context, parentID string) (core.Response, error) {
	query := map[string]any{}
	if parent := strings.TrimSpace(parentID); parent != "" {
		query["parent_id"] = parent
	}
	return c.client.catalogDo(ctx, get("/product/202309/categories", query))
}

func (c *Categories) Recommend(ctx context.Context, title string, description string) (core.Response, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.Response{}, badInput("product_title is required", nil)
	}
	body := map[string]any{"product_title": title}
	if description = strings.TrimSpace(description); description != "" {
		body["description"] = description
	}
	req := post("/product/202309/categories/recommend", body, nil)
	req.Catalog = true
	return c.client.Do(ctx, req)
}

func (c *Categories) Attributes(ctx context.Context, categoryID string, locale string) (core.Response, error) {
	id, err := requireID("category_id", categoryID)
	if err != nil {
		return core.Response{}, err
	}
	query := map[string]any{}
	if locale = strings.TrimSpace(locale); locale != "" {
		query["locale"] = locale
	}
	return c.client.catalogDo(ctx, get("/product/202309/categories/"+url.PathEscape(id)+"/attributes", query))
}

func (c *Categories) Rules(ctx context.Context, categoryID string) (core.Response, error) {
	id, err := requireID("category_id", categoryID)
	if err != nil {
		return core.Response{}, err
	}
	return c.client.catalogDo(ctx, get("/product/202309/categories/"+url.PathEscape(id)+"/rules", nil))
}

type GlobalCategoryOptions struct {
	CategoryVersion string
	Locale          string
	Keyword         string
}

// Global lists cross-border categories. The call is not shop scoped.
func (c *Categories) Global(ctx context.Context, opts GlobalCategoryOptions) (core.Response, error) {
	version := strings.TrimSpace(opts.CategoryVersion)
	if version == "" {
		version = defaultCategoryVersion
	}
	query := map[string]any{"category_version": version}
	if locale := strings.TrimSpace(opts.Locale); locale != "" {
		query["locale"] = locale
	}
	if keyword := strings.TrimSpace(opts.Keyword); keyword != "" {
		query["keyword"] = keyword
	}
	req := get("/product/202309/global_categories", query)
	req.OmitShopCipher = true
	return c.client.catalogDo(ctx, req)
}
