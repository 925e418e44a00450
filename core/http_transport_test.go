package core

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTransport_DecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != `["a","b"]` {
			t.Errorf("expected json encoded array param, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":0,"message":"success","request_id":"req_1","data":{"total":3}}`)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.Client())
	resp, err := transport.do(context.Background(), outboundCall{
		Method: http.MethodGet,
		URL:    server.URL + "/order/202309/orders",
		Query:  map[string]any{"ids": []string{"a", "b"}, "empty": ""},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.RequestID != "req_1" || resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected response %#v", resp)
	}
	var data struct {
		Total int `json:"total"`
	}
	if err := resp.Decode(&data); err != nil || data.Total != 3 {
		t.Fatalf("decode data: %v total=%d", err, data.Total)
	}
}

func TestHTTPTransport_TransientStatusIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	_, err := newHTTPTransport(server.Client()).do(context.Background(), outboundCall{Method: http.MethodGet, URL: server.URL})
	if !IsKind(err, ErrorTransport) {
		t.Fatalf("expected %s, got %v", ErrorTransport, err)
	}
}

func TestHTTPTransport_TimeoutIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := newHTTPTransport(server.Client()).do(context.Background(), outboundCall{
		Method:  http.MethodGet,
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	})
	if !IsKind(err, ErrorTransport) {
		t.Fatalf("expected %s, got %v", ErrorTransport, err)
	}
}

func TestHTTPTransport_InvalidEnvelopeIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	defer server.Close()

	_, err := newHTTPTransport(server.Client()).do(context.Background(), outboundCall{Method: http.MethodGet, URL: server.URL})
	if !IsKind(err, ErrorUpstream) {
		t.Fatalf("expected %s, got %v", ErrorUpstream, err)
	}
}

func TestHTTPTransport_MultipartUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("use_case") != "MAIN_IMAGE" {
			t.Errorf("expected form field, got %q", r.FormValue("use_case"))
		}
		file, header, err := r.FormFile("data")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if header.Filename != "shirt.png" || string(content) != "png-bytes" {
			t.Errorf("unexpected upload %q %q", header.Filename, content)
		}
		_, _ = io.WriteString(w, `{"code":0,"message":"success"}`)
	}))
	defer server.Close()

	_, err := newHTTPTransport(server.Client()).do(context.Background(), outboundCall{
		Method: http.MethodPost,
		URL:    server.URL,
		Upload: &Upload{
			FileName: "shirt.png",
			Content:  []byte("png-bytes"),
			Fields:   map[string]string{"use_case": "MAIN_IMAGE"},
		},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
}

func TestBuildURL_SortsAndSkipsEmpty(t *testing.T) {
	got, err := buildURL("https://example.test/path", map[string]any{
		"b":     2,
		"a":     "x",
		"empty": "",
		"nil":   nil,
	})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if !strings.HasSuffix(got, "?a=x&b=2") {
		t.Fatalf("unexpected url %q", got)
	}
}
