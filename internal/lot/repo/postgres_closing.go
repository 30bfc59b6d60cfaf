package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bidwin/auction-core/internal/lot"
)

// ListExpired retorna os leilões (avulsos e contêineres) ainda active com end_time no passado
func (p *Postgres) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM auctions
		WHERE status = 'active' AND end_time < $1
		ORDER BY end_time
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClosedLot é o resultado do fechamento de um lote
type ClosedLot struct {
	Ref        lot.Ref
	WinnerID   *string
	WinningBid *int64
}

// CloseAuction fecha um leilão expirado numa transação.
// Relê a linha com FOR UPDATE: se já não estiver active (outra varredura passou antes),
// retorna skipped=true sem alterar nada. Para contêineres, cada item recebe o seu vencedor.
func (p *Postgres) CloseAuction(ctx context.Context, auctionID string, now time.Time) (closed []ClosedLot, skipped bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var (
		container bool
		status    string
		end       time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT is_container, status, end_time FROM auctions WHERE id = $1 FOR UPDATE`, auctionID).
		Scan(&container, &status, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, lot.ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if !lot.CanTransition(lot.Status(status), lot.StatusEnded) || !end.Before(now) {
		return nil, true, nil
	}

	refs := []lot.Ref{{Kind: lot.KindStandalone, ID: auctionID}}
	if container {
		if refs, err = itemRefs(ctx, tx, auctionID); err != nil {
			return nil, false, err
		}
	}

	for _, ref := range refs {
		c, err := closeLot(ctx, tx, ref)
		if err != nil {
			return nil, false, fmt.Errorf("close %s: %w", ref, err)
		}
		closed = append(closed, c)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE auctions SET status = 'ended', updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, auctionID); err != nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return closed, false, nil
}

func itemRefs(ctx context.Context, tx *sql.Tx, auctionID string) ([]lot.Ref, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM auction_items WHERE auction_id = $1 ORDER BY created_at FOR UPDATE`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []lot.Ref
	for rows.Next() {
		ref := lot.Ref{Kind: lot.KindItem}
		if err := rows.Scan(&ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// closeLot grava vencedor e current_bid derivados do ledger
func closeLot(ctx context.Context, tx *sql.Tx, ref lot.Ref) (ClosedLot, error) {
	c := ClosedLot{Ref: ref}
	top, err := highestBid(ctx, tx, ref)
	if err != nil {
		return c, err
	}
	if top != nil {
		c.WinnerID = &top.BidderID
		c.WinningBid = &top.Amount
	}
	q := fmt.Sprintf(`UPDATE %s SET winner_id = $2, current_bid = $3, updated_at = NOW() WHERE id = $1`, table(ref.Kind))
	_, err = tx.ExecContext(ctx, q, ref.ID, c.WinnerID, c.WinningBid)
	return c, err
}

// ListSettleable retorna lotes ended, com lance e liquidação ainda pending (os dois formatos).
// payment_state = 'pending' é o gate de idempotência: qualquer tentativa registrada tira o lote da seleção.
func (p *Postgres) ListSettleable(ctx context.Context, limit int) ([]lot.Lot, error) {
	var out []lot.Lot

	rows, err := p.db.QueryContext(ctx, `
		SELECT`+auctionColumns+`
		FROM auctions a
		WHERE NOT a.is_container AND a.status = 'ended'
		  AND a.payment_state = 'pending' AND a.current_bid IS NOT NULL
		ORDER BY a.end_time
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	if out, err = appendLots(out, rows, lot.KindStandalone); err != nil {
		return nil, err
	}

	rows, err = p.db.QueryContext(ctx, `
		SELECT`+itemColumns+`
		FROM auction_items i JOIN auctions a ON a.id = i.auction_id
		WHERE a.status = 'ended'
		  AND i.payment_state = 'pending' AND i.current_bid IS NOT NULL
		ORDER BY a.end_time
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return appendLots(out, rows, lot.KindItem)
}

func appendLots(out []lot.Lot, rows *sql.Rows, kind lot.Kind) ([]lot.Lot, error) {
	defer rows.Close()
	for rows.Next() {
		l, err := scanLot(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ClaimSettlement faz o CAS pending -> processing antes de qualquer cobrança.
// false significa que outra execução já reivindicou (ou finalizou) o lote.
func (p *Postgres) ClaimSettlement(ctx context.Context, ref lot.Ref) (bool, error) {
	q := fmt.Sprintf(`
		UPDATE %s SET payment_state = 'processing', updated_at = NOW()
		WHERE id = $1 AND payment_state = 'pending' AND current_bid IS NOT NULL`, table(ref.Kind))
	res, err := p.db.ExecContext(ctx, q, ref.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordSettlement grava o estado final de um lote reivindicado.
// Só altera lotes em processing; winnerID vazio mantém o vencedor atual.
func (p *Postgres) RecordSettlement(ctx context.Context, ref lot.Ref, winnerID string, s lot.Settlement) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var winner, chargeRef, reason sql.NullString
	if winnerID != "" {
		winner = sql.NullString{String: winnerID, Valid: true}
	}
	if s.ChargeRef != "" {
		chargeRef = sql.NullString{String: s.ChargeRef, Valid: true}
	}
	if s.Reason != "" {
		reason = sql.NullString{String: s.Reason, Valid: true}
	}
	q := fmt.Sprintf(`
		UPDATE %s SET
			winner_id = COALESCE($2, winner_id),
			payment_state = $3,
			payment_ref = $4,
			payment_reason = $5,
			payment_completed_at = $6,
			updated_at = NOW()
		WHERE id = $1 AND payment_state = 'processing'`, table(ref.Kind))
	res, err := p.db.ExecContext(ctx, q, ref.ID, winner, string(s.State), chargeRef, reason, s.CompletedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record settlement %s: lot not in processing state", ref)
	}
	return nil
}
