package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bidwin/auction-core/internal/lot"
)

// ErrDuplicatePayment indica que o ledger já tem o registro (charge_ref repetido
// ou segunda liquidação bem-sucedida do mesmo lote)
var ErrDuplicatePayment = errors.New("duplicate payment record")

// Postgres implementa o acesso a lotes, lances, meios de pagamento, notificações e pagamentos
type Postgres struct{ db *sql.DB }

// NewPostgres retorna o repositório usando o pool compartilhado
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func table(k lot.Kind) string {
	if k == lot.KindItem {
		return "auction_items"
	}
	return "auctions"
}

const itemColumns = `
	i.id, i.auction_id, a.seller_id, i.title, i.description, i.starting_price, i.reserve_price, i.current_bid,
	a.end_time, a.status, i.winner_id, i.payment_state, i.payment_ref, i.payment_reason, i.payment_completed_at,
	i.created_at, i.updated_at`

const auctionColumns = `
	a.id, NULL::uuid, a.seller_id, a.title, a.description, a.starting_price, a.reserve_price, a.current_bid,
	a.end_time, a.status, a.winner_id, a.payment_state, a.payment_ref, a.payment_reason, a.payment_completed_at,
	a.created_at, a.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLot(s scanner, kind lot.Kind) (*lot.Lot, error) {
	var (
		l                                 lot.Lot
		parent, winner, payRef, payReason sql.NullString
		reserve, current                  sql.NullInt64
		completedAt                       sql.NullTime
		status, payState                  string
	)
	if err := s.Scan(
		&l.ID, &parent, &l.SellerID, &l.Title, &l.Description, &l.StartingPrice, &reserve, &current,
		&l.EndTime, &status, &winner, &payState, &payRef, &payReason, &completedAt,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Kind = kind
	l.ParentID = parent.String
	l.Status = lot.Status(status)
	if reserve.Valid {
		l.ReservePrice = &reserve.Int64
	}
	if current.Valid {
		l.CurrentBid = &current.Int64
	}
	if winner.Valid {
		l.WinnerID = &winner.String
	}
	l.Settlement = lot.Settlement{
		State:     lot.SettlementState(payState),
		ChargeRef: payRef.String,
		Reason:    payReason.String,
	}
	if completedAt.Valid {
		t := completedAt.Time
		l.Settlement.CompletedAt = &t
	}
	return &l, nil
}

// Resolve procura primeiro em auction_items e depois em auctions (leilões avulsos).
// Leilões contêiner não são lotes e retornam ErrNotFound.
func (p *Postgres) Resolve(ctx context.Context, id string) (*lot.Lot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, lot.ErrNotFound
	}

	row := p.db.QueryRowContext(ctx, `
		SELECT`+itemColumns+`
		FROM auction_items i JOIN auctions a ON a.id = i.auction_id
		WHERE i.id = $1`, id)
	l, err := scanLot(row, lot.KindItem)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve item %s: %w", id, err)
	}

	row = p.db.QueryRowContext(ctx, `
		SELECT`+auctionColumns+`
		FROM auctions a
		WHERE a.id = $1 AND NOT a.is_container`, id)
	l, err = scanLot(row, lot.KindStandalone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lot.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve auction %s: %w", id, err)
	}
	return l, nil
}

// lockLot lê o lote com lock de linha dentro da transação.
// Para itens a ordem é a mesma do fechamento: primeiro o pai (FOR SHARE), depois o item
// (FOR UPDATE). CloseAuction trava o pai com FOR UPDATE, então os dois se serializam no pai.
func lockLot(ctx context.Context, tx *sql.Tx, ref lot.Ref) (*lot.Lot, error) {
	var row *sql.Row
	if ref.Kind == lot.KindItem {
		var parent string
		err := tx.QueryRowContext(ctx, `
			SELECT a.id FROM auctions a
			WHERE a.id = (SELECT auction_id FROM auction_items WHERE id = $1)
			FOR SHARE`, ref.ID).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lot.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock parent of %s: %w", ref, err)
		}
		row = tx.QueryRowContext(ctx, `
			SELECT`+itemColumns+`
			FROM auction_items i JOIN auctions a ON a.id = i.auction_id
			WHERE i.id = $1
			FOR UPDATE OF i`, ref.ID)
	} else {
		row = tx.QueryRowContext(ctx, `
			SELECT`+auctionColumns+`
			FROM auctions a
			WHERE a.id = $1 AND NOT a.is_container
			FOR UPDATE`, ref.ID)
	}
	l, err := scanLot(row, ref.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lot.ErrNotFound
	}
	return l, err
}

// BidInput são os dados de um lance já cobrado, pronto para entrar no ledger
type BidInput struct {
	ID        string
	BidderID  string
	Amount    int64
	Increment int64
	Currency  string
	Now       time.Time
}

// CommitBid insere o lance e atualiza current_bid numa única transação.
// O lote é relido com lock e a regra do lance mínimo é reavaliada; se outro lance
// passou na frente, retorna *lot.BidTooLowError com o novo mínimo e nada é gravado.
// current_bid é recalculado a partir do ledger, nunca incrementado.
func (p *Postgres) CommitBid(ctx context.Context, ref lot.Ref, in BidInput) (*lot.Bid, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	l, err := lockLot(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if err := lot.CheckBid(l, in.Amount, in.Increment, in.Now, in.Currency); err != nil {
		return nil, err
	}

	b := &lot.Bid{ID: in.ID, LotRef: ref, BidderID: in.BidderID, Amount: in.Amount, CreatedAt: in.Now.UTC()}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bids (id, lot_kind, lot_id, bidder_id, amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, string(ref.Kind), ref.ID, b.BidderID, b.Amount, b.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert bid: %w", err)
	}

	q := fmt.Sprintf(`
		UPDATE %s SET current_bid = (
			SELECT MAX(amount) FROM bids WHERE lot_kind = $1 AND lot_id = $2
		), updated_at = NOW()
		WHERE id = $2`, table(ref.Kind))
	if _, err = tx.ExecContext(ctx, q, string(ref.Kind), ref.ID); err != nil {
		return nil, fmt.Errorf("update current_bid: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBids retorna os lances de um lote na ordem de vitória (valor desc, mais antigo primeiro)
func (p *Postgres) ListBids(ctx context.Context, ref lot.Ref, limit int) ([]lot.Bid, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bidder_id, amount, created_at
		FROM bids
		WHERE lot_kind = $1 AND lot_id = $2
		ORDER BY amount DESC, created_at ASC
		LIMIT $3`, string(ref.Kind), ref.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lot.Bid
	for rows.Next() {
		b := lot.Bid{LotRef: ref}
		if err := rows.Scan(&b.ID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HighestBid retorna o lance vencedor do ledger ou nil se não houver lances
func (p *Postgres) HighestBid(ctx context.Context, ref lot.Ref) (*lot.Bid, error) {
	return highestBid(ctx, p.db, ref)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func highestBid(ctx context.Context, q querier, ref lot.Ref) (*lot.Bid, error) {
	b := lot.Bid{LotRef: ref}
	err := q.QueryRowContext(ctx, `
		SELECT id, bidder_id, amount, created_at
		FROM bids
		WHERE lot_kind = $1 AND lot_id = $2
		ORDER BY amount DESC, created_at ASC
		LIMIT 1`, string(ref.Kind), ref.ID).Scan(&b.ID, &b.BidderID, &b.Amount, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Publish move um leilão (avulso ou contêiner) de draft para active.
// Retorna os ids dos itens quando o leilão é um contêiner.
func (p *Postgres) Publish(ctx context.Context, auctionID string, now time.Time) ([]string, error) {
	if _, err := uuid.Parse(auctionID); err != nil {
		return nil, lot.ErrNotFound
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		status    string
		end       time.Time
		container bool
	)
	err = tx.QueryRowContext(ctx, `SELECT status, end_time, is_container FROM auctions WHERE id = $1 FOR UPDATE`, auctionID).
		Scan(&status, &end, &container)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lot.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !lot.CanTransition(lot.Status(status), lot.StatusActive) {
		return nil, fmt.Errorf("%w: %s -> %s", lot.ErrInvalidTransition, status, lot.StatusActive)
	}
	if !now.Before(end) {
		return nil, fmt.Errorf("%w: end time already passed", lot.ErrInvalidTransition)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE auctions SET status = 'active', updated_at = NOW() WHERE id = $1`, auctionID); err != nil {
		return nil, err
	}

	var items []string
	if container {
		refs, err := itemRefs(ctx, tx, auctionID)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			items = append(items, r.ID)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

// InstrumentFor retorna o meio de pagamento salvo do usuário, ou nil se não houver
func (p *Postgres) InstrumentFor(ctx context.Context, userID string) (*lot.Instrument, error) {
	in := lot.Instrument{UserID: userID}
	var method sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT customer_ref, method_ref, brand, last4
		FROM payment_instruments WHERE user_id = $1`, userID).Scan(&in.CustomerRef, &method, &in.Brand, &in.Last4)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	in.MethodRef = method.String
	return &in, nil
}

// InsertPayment grava uma linha no ledger de pagamentos
func (p *Postgres) InsertPayment(ctx context.Context, pay lot.Payment) error {
	if pay.ID == "" {
		pay.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, lot_kind, lot_id, user_id, amount, currency, status, charge_ref, purpose)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		pay.ID, string(pay.LotRef.Kind), pay.LotRef.ID, pay.UserID, pay.Amount, pay.Currency, pay.Status, pay.ChargeRef, pay.Purpose)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicatePayment
	}
	return err
}

// InsertNotification grava a notificação (write-once)
func (p *Postgres) InsertNotification(ctx context.Context, n lot.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, lot_kind, lot_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, string(n.LotRef.Kind), n.LotRef.ID)
	return err
}

// ListNotifications retorna as notificações mais recentes de um usuário
func (p *Postgres) ListNotifications(ctx context.Context, userID string, limit int) ([]lot.Notification, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, title, message, lot_kind, lot_id, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lot.Notification
	for rows.Next() {
		n := lot.Notification{UserID: userID}
		var kind string
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &kind, &n.LotRef.ID, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.LotRef.Kind = lot.Kind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}
