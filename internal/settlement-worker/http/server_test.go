package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/settlement-worker/settle"
	"github.com/bidwin/auction-core/internal/settlement-worker/sweep"
)

type stubSweeper struct {
	calls int
	rep   sweep.Report
	err   error
}

func (s *stubSweeper) CloseExpired(context.Context, time.Time) (sweep.Report, error) {
	s.calls++
	return s.rep, s.err
}

type stubSettler struct {
	calls int
	rep   settle.Report
	err   error
}

func (s *stubSettler) SettleEnded(context.Context) (settle.Report, error) {
	s.calls++
	return s.rep, s.err
}

func call(h http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthGateRunsBeforeAnyMutation(t *testing.T) {
	sw, se := &stubSweeper{}, &stubSettler{}
	h := (&API{Log: zap.NewNop(), Secret: "s3cret", Sweeper: sw, Settler: se}).Router()

	for _, auth := range []string{"", "Bearer wrong", "s3cret", "Basic s3cret", "Bearer s3cret2"} {
		check.Equal(t, http.StatusUnauthorized, call(h, "/internal/auctions/close-expired", auth).Code)
		check.Equal(t, http.StatusUnauthorized, call(h, "/internal/auctions/settle-ended", auth).Code)
	}
	check.Equal(t, 0, sw.calls)
	check.Equal(t, 0, se.calls)
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	sw := &stubSweeper{}
	h := (&API{Log: zap.NewNop(), Sweeper: sw, Settler: &stubSettler{}}).Router()
	check.Equal(t, http.StatusUnauthorized, call(h, "/internal/auctions/close-expired", "Bearer ").Code)
	check.Equal(t, 0, sw.calls)
}

func TestCloseExpired_PartialFailureIs200(t *testing.T) {
	winner := "bob"
	sw := &stubSweeper{rep: sweep.Report{Processed: 2, Results: []sweep.Result{
		{LotID: "a1", Kind: "standalone", Status: sweep.StatusEnded, WinnerID: &winner},
		{LotID: "a2", Kind: "standalone", Status: sweep.StatusError, Error: "write failed"},
	}}}
	h := (&API{Log: zap.NewNop(), Secret: "s3cret", Sweeper: sw, Settler: &stubSettler{}}).Router()

	rec := call(h, "/internal/auctions/close-expired", "Bearer s3cret")
	check.Equal(t, http.StatusOK, rec.Code)

	var rep sweep.Report
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	check.Equal(t, 2, rep.Processed)
	check.Equal(t, "write failed", rep.Results[1].Error)
}

func TestSettleEnded_TotalFailureIs500(t *testing.T) {
	se := &stubSettler{err: errors.New("db down")}
	h := (&API{Log: zap.NewNop(), Secret: "s3cret", Sweeper: &stubSweeper{}, Settler: se}).Router()

	check.Equal(t, http.StatusInternalServerError, call(h, "/internal/auctions/settle-ended", "Bearer s3cret").Code)

	se.err = nil
	se.rep = settle.Report{Processed: 1, Results: []settle.Result{{LotID: "l1", Kind: "item", Outcome: settle.OutcomeNoPaymentMethod}}}
	rec := call(h, "/internal/auctions/settle-ended", "Bearer s3cret")
	check.Equal(t, http.StatusOK, rec.Code)
	var rep settle.Report
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	check.Equal(t, settle.OutcomeNoPaymentMethod, rep.Results[0].Outcome)
}
