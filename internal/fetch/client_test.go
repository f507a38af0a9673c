package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", 0)

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.httpClient.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", c.httpClient.Timeout)
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", time.Second)
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"kmz/plain.kmz", "kmz/plain.kmz"},
		{"kmz/ SKILL BIKE_DH_DICHATO _BIKE PARK _NEGRO.kmz", "kmz/%20SKILL%20BIKE_DH_DICHATO%20_BIKE%20PARK%20_NEGRO.kmz"},
		{"kmz/LANPU BIKE_XC_ ARAUCO_ LOS CASTA#U00d1OS_ AZUL.kmz", "kmz/LANPU%20BIKE_XC_%20ARAUCO_%20LOS%20CASTA%23U00d1OS_%20AZUL.kmz"},
		{"kmz/Colbún.kmz", "kmz/Colb%C3%BAn.kmz"},
	}
	for _, tt := range tests {
		if got := EscapePath(tt.in); got != tt.want {
			t.Errorf("EscapePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetch_Success(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte("PK-data"))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	body, err := c.Fetch(context.Background(), "kmz/LOS CASTA#U00d1OS.kmz")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "PK-data" {
		t.Errorf("unexpected body %q", body)
	}
	if gotPath != "/kmz/LOS%20CASTA%23U00d1OS.kmz" {
		t.Errorf("unexpected request path %s", gotPath)
	}
}

func TestFetch_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 800), http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	_, err := c.Fetch(context.Background(), "kmz/missing.kmz")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.StatusCode)
	}
	if len(httpErr.Body) != MaxErrorBodySize+3 {
		t.Errorf("expected truncated body, got %d bytes", len(httpErr.Body))
	}
	if !strings.HasSuffix(httpErr.URL, "/kmz/missing.kmz") {
		t.Errorf("unexpected URL %s", httpErr.URL)
	}
}

func TestFetch_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	if c.maxSize != MaxAssetSize {
		t.Fatalf("expected default limit %d, got %d", MaxAssetSize, c.maxSize)
	}

	c.maxSize = 1024
	data, err := c.Fetch(context.Background(), "gpx/exact.gpx")
	if err != nil {
		t.Fatalf("body at the limit should be accepted: %v", err)
	}
	if len(data) != 1024 {
		t.Errorf("expected 1024 bytes, got %d", len(data))
	}

	c.maxSize = 1000
	data, err = c.Fetch(context.Background(), "gpx/big.gpx")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if data != nil {
		t.Errorf("expected no partial body, got %d bytes", len(data))
	}
}

func TestFetch_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", time.Second) // unlikely to be listening
	if _, err := c.Fetch(context.Background(), "kmz/a.kmz"); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	if err := New(ok.URL, time.Second).Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	if err := New(broken.URL, time.Second).Healthcheck(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "kmz"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "kmz", " SKILL #1.kmz"), []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewDirSource(root)
	data, err := src.Fetch(context.Background(), "kmz/ SKILL #1.kmz")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "zip" {
		t.Errorf("unexpected data %q", data)
	}

	if _, err := src.Fetch(context.Background(), "kmz/missing.kmz"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := src.Fetch(context.Background(), "../secret"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}
