package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

const (
	ImageUseCaseMain        = "MAIN_IMAGE"
	ImageUseCaseAttribute   = "ATTRIBUTE_IMAGE"
	ImageUseCaseDescription = "DESCRIPTION_IMAGE"
	ImageUseCaseCertificate = "CERTIFICATION_IMAGE"
	ImageUseCaseSizeChart   = "SIZE_CHART_IMAGE"
)

// Files uploads media. Uploads are multipart and are signed without a body.
type Files struct {
	client *Client
}

func (f *Files) UploadImage(ctx context.Context, fileName string, content []byte, useCase string) (core.Response, error) {
	if len(content) == 0 {
		return core.Response{}, badInput("image content is required", nil)
	}
	useCase = strings.TrimSpace(useCase)
	if useCase == "" {
		useCase = ImageUseCaseMain
	}
	return f.client.Do(ctx, upload("/product/202309/images/upload", fileName, "image.jpg", content, map[string]string{
		"use_case": useCase,
	}))
}

// UploadFile uploads a PDF or video attachment. name defaults to the file's
// base name.
func (f *Files) UploadFile(ctx context.Context, fileName string, content []byte, name string) (core.Response, error) {
	if len(content) == 0 {
		return core.Response{}, badInput("file content is required", nil)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return core.Response{}, badInput("file name is required", nil)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = filepath.Base(fileName)
	}
	return f.client.Do(ctx, upload("/product/202309/files/upload", fileName, fileName, content, map[string]string{
		"name": name,
	}))
}

func upload(path string, fileName string, fallback string, content []byte, fields map[string]string) core.Request {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = fallback
	}
	return core.Request{
		Method:         http.MethodPost,
		Path:           path,
		OmitShopCipher: true,
		Upload: &core.Upload{
			FieldName:   "data",
			FileName:    filepath.Base(fileName),
			ContentType: http.DetectContentType(content),
			Content:     content,
			Fields:      fields,
		},
	}
}
