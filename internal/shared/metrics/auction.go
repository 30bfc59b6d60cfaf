package metrics

import "github.com/prometheus/client_golang/prometheus"

// Auction agrupa os contadores do núcleo de leilão
type Auction struct {
	BidsAccepted       prometheus.Counter
	BidsRejected       *prometheus.CounterVec // reason
	BidRefunds         prometheus.Counter
	LotsClosed         *prometheus.CounterVec // outcome: won | no_bids
	SweepErrors        prometheus.Counter
	SettlementOutcomes *prometheus.CounterVec // outcome
	BatchDuration      *prometheus.HistogramVec
}

// NewAuction cria os coletores e registra no registerer informado
func NewAuction(reg prometheus.Registerer) *Auction {
	m := &Auction{
		BidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidwin_bids_accepted_total", Help: "lances aceitos",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidwin_bids_rejected_total", Help: "lances rejeitados por motivo",
		}, []string{"reason"}),
		BidRefunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidwin_bid_refunds_total", Help: "cobranças estornadas após perder a corrida do lance",
		}),
		LotsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidwin_lots_closed_total", Help: "lotes fechados pela varredura",
		}, []string{"outcome"}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidwin_sweep_errors_total", Help: "falhas por leilão na varredura",
		}),
		SettlementOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidwin_settlement_outcomes_total", Help: "resultados de liquidação",
		}, []string{"outcome"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bidwin_batch_duration_seconds",
			Help:    "duração das execuções em lote",
			Buckets: prometheus.DefBuckets,
		}, []string{"batch"}),
	}
	reg.MustRegister(m.BidsAccepted, m.BidsRejected, m.BidRefunds, m.LotsClosed,
		m.SweepErrors, m.SettlementOutcomes, m.BatchDuration)
	return m
}
