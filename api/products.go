package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

const (
	maxProductIDsPerDelete = 20
	maxSEOWordProductIDs   = 20
	listingPlatformTikTok  = "TIKTOK_SHOP"
)

type Products struct {
	client *Client
}

// GetProductOptions controls which version of a product is returned.
type GetProductOptions struct {
	ReturnUnderReviewVersion bool
	ReturnDraftVersion       bool
	Locale                   string
}

func productPath(id string, suffix string) string {
	path := "/product/202309/products/" + url.PathEscape(id)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

func (p *Products) Create(ctx context.Context, product map[string]any) (core.Response, error) {
	if len(product) == 0 {
		return core.Response{}, badInput("product payload is required", nil)
	}
	return p.client.Do(ctx, post("/product/202309/products", product, nil))
}

func (p *Products) Get(ctx context.Context, productID string, opts GetProductOptions) (core.Response, error) {
	id, err := requireID("product_id", productID)
	if err != nil {
		return core.Response{}, err
	}
	query := map[string]any{}
	if opts.ReturnUnderReviewVersion {
		query["return_under_review_version"] = true
	}
	if opts.ReturnDraftVersion {
		query["return_draft_version"] = true
	}
	if locale := strings.TrimSpace(opts.Locale); locale != "" {
		query["locale"] = locale
	}
	return p.client.Do(ctx, get(productPath(id, ""), query))
}

// Search lists products matching filters. The filters travel in the body,
// the cursor in the query.
func (p *Products) Search(ctx context.Context, filters map[string]any, page Page) (core.Response, error) {
	return p.client.Do(ctx, post("/product/202502/products/search", copyMap(filters), page.apply(nil, 20)))
}

// Edit replaces a product. Omitted fields are cleared upstream.
func (p *Products) Edit(ctx context.Context, productID string, product map[string]any) (core.Response, error) {
	id, err := requireID("product_id", productID)
	if err != nil {
		return core.Response{}, err
	}
	req := post(productPath(id, ""), product, nil)
	req.Method = http.MethodPut
	return p.client.Do(ctx, req)
}

func (p *Products) PartialEdit(ctx context.Context, productID string, fields map[string]any) (core.Response, error) {
	id, err := requireID("product_id", productID)
	if err != nil {
		return core.Response{}, err
	}
	if len(fields) == 0 {
		return core.Response{}, badInput("at least one field is required", nil)
	}
	return p.client.Do(ctx, post(productPath(id, "partial_edit"), fields, nil))
}

func (p *Products) Activate(ctx context.Context, productIDs []string) (core.Response, error) {
	return p.changeStatus(ctx, "activate", productIDs, true)
}

func (p *Products) Deactivate(ctx context.Context, productIDs []string) (core.Response, error) {
	return p.changeStatus(ctx, "deactivate", productIDs, true)
}

func (p *Products) Recover(ctx context.Context, productIDs []string) (core.Response, error) {
	return p.changeStatus(ctx, "recover", productIDs, false)
}

func (p *Products) changeStatus(ctx context.Context, action string, productIDs []string, platforms bool) (core.Response, error) {
	ids, err := requireIDs("product_ids", productIDs, 0)
	if err != nil {
		return core.Response{}, err
	}
	body := map[string]any{"product_ids": ids}
	if platforms {
		body["listing_platforms"] = []string{listingPlatformTikTok}
	}
	return p.client.Do(ctx, post("/product/202309/products/"+action, body, nil))
}

func (p *Products) Delete(ctx context.Context, productIDs []string) (core.Response, error) {
	ids, err := requireIDs("product_ids", productIDs, maxProductIDsPerDelete)
	if err != nil {
		return core.Response{}, err
	}
	return p.client.Do(ctx, core.Request{
		Method: http.MethodDelete,
		Path:   "/product/202309/products",
		Body:   map[string]any{"product_ids": ids},
	})
}

func (p *Products) UpdatePrices(ctx context.Context, productID string, skus []map[string]any) (core.Response, error) {
	id, err := requireID("product_id", productID)
	if err != nil {
		return core.Response{}, err
	}
	if len(skus) == 0 {
		return core.Response{}, badInput("at least one sku is required", nil)
	}
	return p.client.Do(ctx, post(productPath(id, "prices/update"), map[string]any{"skus": skus}, nil))
}

func (p *Products) ListingCheck(ctx context.Context, product map[string]any) (core.Response, error) {
	if len(product) == 0 {
		return core.Response{}, badInput("product payload is required", nil)
	}
	return p.client.Do(ctx, post("/product/202309/products/listing_check", product, nil))
}

// Prerequisites checks whether the shop may list products at all.
func (p *Products) Prerequisites(ctx context.Context) (core.Response, error) {
	return p.client.Do(ctx, post("/product/202312/prerequisites", nil, nil))
}

func (p *Products) Diagnoses(ctx context.Context, productIDs []string) (core.Response, error) {
	query := map[string]any{}
	if ids, err := requireIDs("product_ids", productIDs, 0); err == nil {
		query["product_ids"] = strings.Join(ids, ",")
	}
	return p.client.Do(ctx, get("/product/202405/products/diagnoses", query))
}

func (p *Products) DiagnoseOptimize(ctx context.Context, payload map[string]any) (core.Response, error) {
	if len(payload) == 0 {
		return core.Response{}, badInput("diagnose payload is required", nil)
	}
	return p.client.Do(ctx, post("/product/202411/products/diagnose_optimize", payload, nil))
}

func (p *Products) SEOWords(ctx context.Context, productIDs []string) (core.Response, error) {
	ids, err := requireIDs("product_ids", productIDs, maxSEOWordProductIDs)
	if err != nil {
		return core.Response{}, err
	}
	return p.client.Do(ctx, get("/product/202405/products/seo_words", map[string]any{
		"product_ids": strings.Join(ids, ","),
	}))
}

func (p *Products) Suggestions(ctx context.Context, productIDs []string) (core.Response, error) {
	query := map[string]any{}
	if ids, err := requireIDs("product_ids", productIDs, 0); err == nil {
		query["product_ids"] = strings.Join(ids, ",")
	}
	return p.client.Do(ctx, get("/product/202405/products/suggestions", query))
}

// OptimizeImages asks the platform to upgrade images to listing standards.
func (p *Products) OptimizeImages(ctx context.Context, images []map[string]any) (core.Response, error) {
	if len(images) == 0 {
		return core.Response{}, badInput("at least one image is required", nil)
	}
	return p.client.Do(ctx, post("/product/202404/images/optimize", map[string]any{"images": images}, nil))
}
