package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/settlement-worker/settle"
	"github.com/bidwin/auction-core/internal/settlement-worker/sweep"
)

type Sweeper interface {
	CloseExpired(ctx context.Context, now time.Time) (sweep.Report, error)
}

type Settler interface {
	SettleEnded(ctx context.Context) (settle.Report, error)
}

// API expõe os gatilhos em lote chamados pelo agendador externo (cron)
type API struct {
	Log     *zap.Logger
	Secret  string
	Sweeper Sweeper
	Settler Settler
	Now     func() time.Time
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/internal/auctions", func(r chi.Router) {
		r.Use(a.requireSecret) // autenticação antes de qualquer mutação
		r.Post("/close-expired", a.closeExpired)
		r.Post("/settle-ended", a.settleEnded)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireSecret valida "Authorization: Bearer <CRON_SECRET>" em tempo constante.
// Sem segredo configurado, nada passa.
func (a *API) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if a.Secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.Secret)) != 1 {
			a.Log.Warn("unauthorized batch trigger", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) closeExpired(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	rep, err := a.Sweeper.CloseExpired(r.Context(), now)
	if err != nil {
		a.Log.Error("close expired failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.Log.Info("close expired finished", zap.Int("processed", rep.Processed))
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) settleEnded(w http.ResponseWriter, r *http.Request) {
	rep, err := a.Settler.SettleEnded(r.Context())
	if err != nil {
		a.Log.Error("settle ended failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.Log.Info("settle ended finished", zap.Int("processed", rep.Processed))
	writeJSON(w, http.StatusOK, rep)
}
