package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"
)

const maxResponseBodyBytes int64 = 16 << 20

type outboundCall struct {
	Method  string
	URL     string
	Query   map[string]any
	Body    []byte
	Upload  *Upload
	Headers http.Header
	Timeout time.Duration
}

// httpTransport performs a single HTTP round trip and decodes the platform
// envelope. It never retries and never touches credentials.
type httpTransport struct {
	client HTTPDoer
}

func newHTTPTransport(client HTTPDoer) *httpTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &httpTransport{client: client}
}

func (t *httpTransport) do(ctx context.Context, call outboundCall) (Response, error) {
	if t == nil || t.client == nil {
		return Response{}, NewError(ErrorInternal, "tiktokshop: http client is not configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx := ctx
	cancel := func() {}
	if call.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, call.Timeout)
	}
	defer cancel()

	target, err := buildURL(call.URL, call.Query)
	if err != nil {
		return Response{}, err
	}

	var body io.Reader
	contentType := ""
	switch {
	case call.Upload != nil:
		payload, boundaryType, err := encodeMultipart(call.Upload)
		if err != nil {
			return Response{}, err
		}
		body = bytes.NewReader(payload)
		contentType = boundaryType
	case len(call.Body) > 0:
		body = bytes.NewReader(call.Body)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, call.Method, target, body)
	if err != nil {
		return Response{}, WrapError(err, ErrorSigningInputInvalid, "tiktokshop: build http request", nil)
	}
	for key, values := range call.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	metadata := map[string]any{"path": httpReq.URL.Path, "method": call.Method}
	response, err := t.client.Do(httpReq)
	if err != nil {
		if isTimeout(requestCtx, err) {
			metadata["timeout"] = true
		}
		return Response{}, WrapError(err, ErrorTransport, "tiktokshop: http request failed", metadata)
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return Response{}, WrapError(readErr, ErrorTransport, "tiktokshop: read response body", metadata)
	}
	if int64(len(raw)) > maxResponseBodyBytes {
		return Response{}, NewError(ErrorUpstream, fmt.Sprintf("tiktokshop: response exceeds %d bytes", maxResponseBodyBytes), metadata)
	}

	out := Response{StatusCode: response.StatusCode, Header: response.Header.Clone()}
	metadata["status"] = response.StatusCode
	if isTransientStatus(response.StatusCode) {
		return out, NewError(ErrorTransport, fmt.Sprintf("tiktokshop: upstream unavailable (%d)", response.StatusCode), metadata)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		if response.StatusCode >= http.StatusBadRequest {
			return out, nil
		}
		return out, WrapError(err, ErrorUpstream, "tiktokshop: decode response envelope", metadata)
	}
	out.StatusCode = response.StatusCode
	out.Header = response.Header.Clone()
	return out, nil
}

func buildURL(base string, query map[string]any) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", WrapError(err, ErrorSigningInputInvalid, "tiktokshop: invalid request url", nil)
	}
	values := parsed.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		formatted, ok, err := FormatQueryValue(query[key])
		if err != nil {
			return "", WrapError(err, ErrorSigningInputInvalid, "tiktokshop: invalid query parameter", map[string]any{"param": key})
		}
		if !ok {
			continue
		}
		values.Set(key, formatted)
	}
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

func encodeMultipart(upload *Upload) ([]byte, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	keys := make([]string, 0, len(upload.Fields))
	for key := range upload.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, upload.Fields[key]); err != nil {
			return nil, "", WrapError(err, ErrorSigningInputInvalid, "tiktokshop: write multipart field", nil)
		}
	}

	fieldName := strings.TrimSpace(upload.FieldName)
	if fieldName == "" {
		fieldName = "data"
	}
	fileName := strings.TrimSpace(upload.FileName)
	if fileName == "" {
		fileName = "upload"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(fieldName), escapeQuotes(fileName)))
	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", WrapError(err, ErrorSigningInputInvalid, "tiktokshop: create multipart part", nil)
	}
	if _, err := part.Write(upload.Content); err != nil {
		return nil, "", WrapError(err, ErrorSigningInputInvalid, "tiktokshop: write multipart content", nil)
	}
	if err := writer.Close(); err != nil {
		return nil, "", WrapError(err, ErrorSigningInputInvalid, "tiktokshop: close multipart writer", nil)
	}
	return buffer.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(value string) string {
	return quoteEscaper.Replace(value)
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
