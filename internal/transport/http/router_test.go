package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soulstream/livecast/internal/config"
	"github.com/soulstream/livecast/internal/domain"
	"github.com/soulstream/livecast/internal/gateway"
	"github.com/soulstream/livecast/internal/registry"
	"github.com/soulstream/livecast/internal/storage/sqlite"
)

func newTestRouter(t *testing.T) (*gin.Engine, *sqlite.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:          "test",
		DBPath:        filepath.Join(t.TempDir(), "livecast.db"),
		PingPeriod:    54 * time.Second,
		Secret:        "test-secret",
		MsgRateLimit:  20,
		MsgRateWindow: 10 * time.Second,
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.New()
	gw := gateway.New(cfg, reg, store)
	return SetupRouter(context.Background(), cfg, store, gw), store
}

func TestListStreamsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "[]" {
		t.Errorf("body = %q, want empty array", got)
	}
}

func TestListStreamsReturnsMirror(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	catID, err := store.EnsureCategory(ctx, "Music")
	if err != nil {
		t.Fatal(err)
	}
	info := domain.StreamInfo{
		ID:          "s1",
		Owner:       "alice@example.com",
		Title:       "morning session",
		Category:    "Music",
		CreatedAt:   time.Now(),
		ViewerCount: 3,
	}
	if err := store.InsertActive(ctx, info, "c1", catID); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rows []sqlite.StreamRow
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "s1" || rows[0].ViewerCount != 3 || rows[0].Category != "Music" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestHistoryEndpointEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/streams/history", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "[]" {
		t.Errorf("body = %q, want empty array", got)
	}
}

func TestClientTokenIssued(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	r.ServeHTTP(w, req)

	var token string
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "ct" {
			token = ck.Value
		}
	}
	if token == "" {
		t.Fatal("no client token cookie issued")
	}

	// A request carrying the cookie keeps its token.
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	req2.AddCookie(&http.Cookie{Name: "ct", Value: token})
	r.ServeHTTP(w2, req2)
	for _, ck := range w2.Result().Cookies() {
		if ck.Name == "ct" && ck.Value != token {
			t.Error("existing token replaced")
		}
	}
}
