package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Targets são os serviços atrás do gateway
type Targets struct {
	BidService string // /api/* -> bid-service
	LotFeed    string // /ws -> lot-feed-service
}

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q", to)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// Router monta o mux público. Os gatilhos /internal do settlement-worker nunca passam pelo gateway.
func Router(t Targets) (http.Handler, error) {
	bid, err := rp(t.BidService)
	if err != nil {
		return nil, err
	}
	feed, err := rp(t.LotFeed)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// lances e lotes (ex.: /api/v1/lots/{id}/bids -> bid-service /v1/lots/{id}/bids)
	mux.Handle("/api/", http.StripPrefix("/api", bid))

	// feed em tempo real
	mux.Handle("/ws", feed)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return withCORS(blockInternal(mux)), nil
}

func blockInternal(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/internal") || strings.HasPrefix(r.URL.Path, "/api/internal") {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
