package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestRouter_ProxiesAPIWithoutPrefix(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, "ok")
	}))
	defer upstream.Close()

	h, err := Router(Targets{BidService: upstream.URL, LotFeed: upstream.URL})
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lots/abc", nil))
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, "/v1/lots/abc", gotPath)
	check.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_BlocksInternalTriggers(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer upstream.Close()

	h, err := Router(Targets{BidService: upstream.URL, LotFeed: upstream.URL})
	assert.NoError(t, err)

	for _, path := range []string{"/internal/auctions/close-expired", "/api/internal/auctions/settle-ended"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		check.Equal(t, http.StatusNotFound, rec.Code)
	}
	check.False(t, called)
}

func TestRouter_InvalidTarget(t *testing.T) {
	_, err := Router(Targets{BidService: "::nope", LotFeed: "http://localhost:8080"})
	check.Error(t, err)
}
