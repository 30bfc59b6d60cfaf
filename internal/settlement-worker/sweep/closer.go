package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	"github.com/bidwin/auction-core/internal/lot/repo"
	"github.com/bidwin/auction-core/internal/shared/metrics"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

// Store é o subconjunto do repositório usado pela varredura
type Store interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	CloseAuction(ctx context.Context, auctionID string, now time.Time) ([]repo.ClosedLot, bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, ref lot.Ref, e events.Envelope) error
}

type Notifier interface {
	Notify(ctx context.Context, n lot.Notification)
}

// Status de cada lote no relatório
const (
	StatusEnded       = "ended"
	StatusEndedNoBids = "ended_no_bids"
	StatusSkipped     = "skipped"
	StatusError       = "error"
)

// Result é uma linha do relatório; erros de um leilão não interrompem os demais
type Result struct {
	LotID      string  `json:"lotId"`
	Kind       string  `json:"kind"`
	AuctionID  string  `json:"auctionId"`
	Status     string  `json:"status"`
	WinnerID   *string `json:"winnerId,omitempty"`
	WinningBid *int64  `json:"winningBid,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type Report struct {
	Processed int      `json:"processed"`
	Results   []Result `json:"results"`
}

// Closer transiciona leilões expirados de active para ended
type Closer struct {
	Store     Store
	Publisher Publisher // opcional
	Notifier  Notifier  // opcional
	Metrics   *metrics.Auction
	Log       *zap.Logger
	BatchSize int
	Currency  string
}

// CloseExpired fecha todos os leilões active com end_time < now.
// Só retorna erro se a seleção inteira falhar; falhas por leilão vão para o relatório.
// Rodar de novo com o mesmo now não produz novas transições.
func (c *Closer) CloseExpired(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	defer func() {
		if c.Metrics != nil {
			c.Metrics.BatchDuration.WithLabelValues("close_expired").Observe(time.Since(start).Seconds())
		}
	}()

	limit := c.BatchSize
	if limit <= 0 {
		limit = 100
	}
	ids, err := c.Store.ListExpired(ctx, now, limit)
	if err != nil {
		return Report{}, fmt.Errorf("list expired auctions: %w", err)
	}

	rep := Report{Results: make([]Result, 0, len(ids))}
	for _, id := range ids {
		rep.Results = append(rep.Results, c.closeOne(ctx, id, now)...)
	}
	rep.Processed = len(rep.Results)
	return rep, nil
}

func (c *Closer) closeOne(ctx context.Context, auctionID string, now time.Time) []Result {
	log := c.Log.With(zap.String("auction", auctionID))

	closed, skipped, err := c.Store.CloseAuction(ctx, auctionID, now)
	if err != nil {
		log.Error("close auction failed", zap.Error(err))
		if c.Metrics != nil {
			c.Metrics.SweepErrors.Inc()
		}
		return []Result{{LotID: auctionID, Kind: string(lot.KindStandalone), AuctionID: auctionID, Status: StatusError, Error: err.Error()}}
	}
	if skipped {
		log.Debug("auction already closed by another run")
		return []Result{{LotID: auctionID, Kind: string(lot.KindStandalone), AuctionID: auctionID, Status: StatusSkipped}}
	}

	out := make([]Result, 0, len(closed))
	for _, cl := range closed {
		r := Result{
			LotID:      cl.Ref.ID,
			Kind:       string(cl.Ref.Kind),
			AuctionID:  auctionID,
			Status:     StatusEnded,
			WinnerID:   cl.WinnerID,
			WinningBid: cl.WinningBid,
		}
		outcome := "won"
		if cl.WinnerID == nil {
			r.Status = StatusEndedNoBids
			outcome = "no_bids"
		}
		if c.Metrics != nil {
			c.Metrics.LotsClosed.WithLabelValues(outcome).Inc()
		}
		c.announce(ctx, log, cl)
		log.Info("lot closed", zap.String("lot", cl.Ref.String()), zap.String("outcome", outcome))
		out = append(out, r)
	}
	return out
}

// announce publica lot_closed e avisa o vencedor; nenhuma falha aqui desfaz o fechamento
func (c *Closer) announce(ctx context.Context, log *zap.Logger, cl repo.ClosedLot) {
	if c.Publisher != nil {
		if err := c.Publisher.Publish(ctx, cl.Ref, events.Envelope{
			Type:      events.TypeLotClosed,
			LotClosed: &events.LotClosed{WinnerID: cl.WinnerID, WinningBid: cl.WinningBid},
		}); err != nil {
			log.Warn("lot_closed publish failed", zap.String("lot", cl.Ref.String()), zap.Error(err))
		}
	}
	if c.Notifier != nil && cl.WinnerID != nil && cl.WinningBid != nil {
		c.Notifier.Notify(ctx, lot.Notification{
			UserID:  *cl.WinnerID,
			Type:    lot.NotificationAuctionWon,
			Title:   "You won!",
			Message: fmt.Sprintf("Your bid of %s was the highest. Your saved card will be charged shortly.", lot.FormatMinor(*cl.WinningBid, c.Currency)),
			LotRef:  cl.Ref,
		})
	}
}
