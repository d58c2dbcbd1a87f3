package visserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rexliu/geonb/pkg/layers"
)

type hit struct {
	method string
	path   string
	body   map[string]any
}

func newTestServer(t *testing.T, status int, reply string) (*httptest.Server, *[]hit) {
	t.Helper()
	var hits []hit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := hit{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&h.body)
		}
		hits = append(hits, h)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestLifecycle(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK, "")
	c, err := New(srv.URL + "/ktile/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := c.Start(ctx, "sess-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Shutdown(ctx, "sess-1"); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	got := *hits
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0].method != http.MethodPost || got[0].path != "/ktile/sess-1" {
		t.Fatalf("unexpected start request %+v", got[0])
	}
	if got[1].method != http.MethodDelete || got[1].path != "/ktile/sess-1" {
		t.Fatalf("unexpected shutdown request %+v", got[1])
	}
}

func TestIngest(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK, "{}")
	c, _ := New(srv.URL)
	data := layers.RasterData{Name: "dem", Path: "/data/dem.tif", Bands: []int{1, 2, 3}}
	visURL, err := c.Ingest(context.Background(), "sess-1", "dem", data)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if visURL != srv.URL+"/sess-1/dem" {
		t.Fatalf("unexpected vis url %s", visURL)
	}
	body := (*hits)[0].body
	provider, _ := body["provider"].(map[string]any)
	if provider["class"] != DefaultProvider {
		t.Fatalf("unexpected provider %v", provider)
	}
	kwargs, _ := provider["kwargs"].(map[string]any)
	if kwargs["path"] != "/data/dem.tif" || kwargs["name"] != "dem" {
		t.Fatalf("unexpected kwargs %v", kwargs)
	}
}

func TestIngestErrors(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, `{"error":["no such ","file"]}`)
	c, _ := New(srv.URL)
	_, err := c.Ingest(context.Background(), "s", "dem", layers.RasterData{Name: "dem"})
	if !errors.Is(err, ErrStatus) || !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("expected status error with body text, got %v", err)
	}
	if _, err := c.Ingest(context.Background(), "s", "roads", layers.VectorData{Name: "roads"}); err == nil {
		t.Fatal("vector data cannot be ingested")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("ftp://tiles"); err == nil {
		t.Fatal("expected error for non-http url")
	}
}
