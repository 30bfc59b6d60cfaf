package sweep

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	"github.com/bidwin/auction-core/internal/lot/repo"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memAuction struct {
	status lot.Status
	end    time.Time
	items  []string // vazio => avulso
	fail   error
}

// memStore reproduz a semântica de CloseAuction: pula o que não está mais active
type memStore struct {
	mu       sync.Mutex
	auctions map[string]*memAuction
	bids     map[string][]lot.Bid
	winners  map[string]*string
	stale    []string // ids devolvidos pela seleção mesmo já fechados (corrida com outra execução)
}

func (m *memStore) ListExpired(_ context.Context, at time.Time, _ int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.stale...)
	for id, a := range m.auctions {
		if a.status == lot.StatusActive && a.end.Before(at) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) CloseAuction(_ context.Context, id string, at time.Time) ([]repo.ClosedLot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.auctions[id]
	if a.fail != nil {
		return nil, false, a.fail
	}
	if a.status != lot.StatusActive || !a.end.Before(at) {
		return nil, true, nil
	}
	refs := []lot.Ref{{Kind: lot.KindStandalone, ID: id}}
	if len(a.items) > 0 {
		refs = refs[:0]
		for _, it := range a.items {
			refs = append(refs, lot.Ref{Kind: lot.KindItem, ID: it})
		}
	}
	var out []repo.ClosedLot
	for _, ref := range refs {
		cl := repo.ClosedLot{Ref: ref}
		if top := lot.HighestBid(m.bids[ref.ID]); top != nil {
			cl.WinnerID = &top.BidderID
			cl.WinningBid = &top.Amount
		}
		m.winners[ref.ID] = cl.WinnerID
		out = append(out, cl)
	}
	a.status = lot.StatusEnded
	return out, false, nil
}

type memPub struct{ envs []events.Envelope }

func (p *memPub) Publish(_ context.Context, ref lot.Ref, e events.Envelope) error {
	e.LotID = ref.ID
	p.envs = append(p.envs, e)
	return nil
}

type memNotifier struct{ sent []lot.Notification }

func (n *memNotifier) Notify(_ context.Context, x lot.Notification) { n.sent = append(n.sent, x) }

func bid(id, who string, amount int64, at time.Time) lot.Bid {
	return lot.Bid{ID: id, BidderID: who, Amount: amount, CreatedAt: at}
}

func fixture() *memStore {
	return &memStore{
		auctions: map[string]*memAuction{
			"a-bids":      {status: lot.StatusActive, end: now.Add(-time.Minute)},
			"a-nobids":    {status: lot.StatusActive, end: now.Add(-time.Hour)},
			"a-future":    {status: lot.StatusActive, end: now.Add(time.Hour)},
			"a-container": {status: lot.StatusActive, end: now.Add(-time.Second), items: []string{"i-1", "i-2"}},
		},
		bids: map[string][]lot.Bid{
			"a-bids": {
				bid("b1", "alice", 1100, now.Add(-10*time.Minute)),
				bid("b2", "bob", 1200, now.Add(-9*time.Minute)),
				bid("b3", "carol", 1200, now.Add(-8*time.Minute)),
			},
			"i-1": {bid("b4", "dave", 5000, now.Add(-5*time.Minute))},
		},
		winners: map[string]*string{},
	}
}

func newCloser(st Store) (*Closer, *memPub, *memNotifier) {
	pub, nt := &memPub{}, &memNotifier{}
	return &Closer{Store: st, Publisher: pub, Notifier: nt, Log: zap.NewNop(), Currency: "usd"}, pub, nt
}

func byLot(rep Report) map[string]Result {
	out := map[string]Result{}
	for _, r := range rep.Results {
		out[r.LotID] = r
	}
	return out
}

func TestCloseExpired_WinnersAndNoBids(t *testing.T) {
	st := fixture()
	c, pub, nt := newCloser(st)

	rep, err := c.CloseExpired(context.Background(), now)
	assert.NoError(t, err)
	check.Equal(t, 4, rep.Processed)

	res := byLot(rep)
	check.Equal(t, StatusEnded, res["a-bids"].Status)
	check.Equal(t, "bob", *res["a-bids"].WinnerID) // empate em 1200: o mais antigo vence
	check.Equal(t, StatusEndedNoBids, res["a-nobids"].Status)
	check.Nil(t, res["a-nobids"].WinnerID)
	check.Equal(t, StatusEnded, res["i-1"].Status)
	check.Equal(t, "item", res["i-1"].Kind)
	check.Equal(t, StatusEndedNoBids, res["i-2"].Status)

	check.Equal(t, lot.StatusActive, st.auctions["a-future"].status)
	check.Equal(t, 4, len(pub.envs))
	check.Equal(t, 2, len(nt.sent))
	check.Equal(t, lot.NotificationAuctionWon, nt.sent[0].Type)
}

func TestCloseExpired_SecondRunIsNoop(t *testing.T) {
	st := fixture()
	c, pub, _ := newCloser(st)

	_, err := c.CloseExpired(context.Background(), now)
	assert.NoError(t, err)
	published := len(pub.envs)

	rep, err := c.CloseExpired(context.Background(), now)
	assert.NoError(t, err)
	check.Equal(t, 0, rep.Processed)
	check.Equal(t, published, len(pub.envs))
}

func TestCloseExpired_ConcurrentRunSkips(t *testing.T) {
	st := fixture()
	st.auctions["a-bids"].status = lot.StatusEnded
	st.stale = []string{"a-bids"}
	c, pub, _ := newCloser(st)

	rep, err := c.CloseExpired(context.Background(), now)
	assert.NoError(t, err)
	check.Equal(t, StatusSkipped, byLot(rep)["a-bids"].Status)
	for _, e := range pub.envs {
		check.NotEqual(t, "a-bids", e.LotID)
	}
}

func TestCloseExpired_OneFailureDoesNotAbortBatch(t *testing.T) {
	st := fixture()
	st.auctions["a-bids"].fail = errors.New("write failed")
	c, _, _ := newCloser(st)

	rep, err := c.CloseExpired(context.Background(), now)
	assert.NoError(t, err)
	res := byLot(rep)
	check.Equal(t, StatusError, res["a-bids"].Status)
	check.Equal(t, "write failed", res["a-bids"].Error)
	check.Equal(t, StatusEndedNoBids, res["a-nobids"].Status)
	check.Equal(t, lot.StatusEnded, st.auctions["a-container"].status)
}

type failingList struct{ memStore }

func (f *failingList) ListExpired(context.Context, time.Time, int) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestCloseExpired_SelectionFailure(t *testing.T) {
	c, _, _ := newCloser(&failingList{})
	_, err := c.CloseExpired(context.Background(), now)
	check.Error(t, err)
}
