// Package postgres archives completed raffle rounds. Live rounds stay in the
// primary store; rows land here only when a round is rolled over.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/lib/pq"

	"raffle-backend/internal/features/raffle/models"
)

//go:embed schema.sql
var schema string

type ArchiveRepository struct {
	db *sql.DB
}

func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// EnsureSchema creates the archive tables if they do not exist.
func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply archive schema: %w", err)
	}
	return nil
}

// ArchiveRound stores a draw with its winners and the round's sales in one
// transaction. Rows already present are skipped, so a retried rollover is harmless.
func (r *ArchiveRepository) ArchiveRound(ctx context.Context, draw *models.Draw, sales []*models.Sale) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const qDraw = `
	INSERT INTO raffle_draws (id, denomination, round_id, drawn_at, entries, forced)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT DO NOTHING`
	if _, err = tx.ExecContext(ctx, qDraw, draw.ID, draw.Denomination, draw.RoundID, draw.Timestamp, draw.Entries, draw.Forced); err != nil {
		return fmt.Errorf("insert draw: %w", err)
	}

	const qWinner = `
	INSERT INTO raffle_draw_winners (draw_id, rank, ticket_number, buyer_id, sale_id, prize)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT DO NOTHING`
	for _, w := range draw.Winners {
		if _, err = tx.ExecContext(ctx, qWinner, draw.ID, w.Rank, w.TicketNumber, w.BuyerID, w.SaleID, w.Prize); err != nil {
			return fmt.Errorf("insert winner %d: %w", w.Rank, err)
		}
	}

	const qSale = `
	INSERT INTO raffle_sales (id, denomination, round_id, ticket_number, buyer_id, sold_at, is_free, free_reason)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT DO NOTHING`
	for _, s := range sales {
		if _, err = tx.ExecContext(ctx, qSale, s.ID, s.Denomination, s.RoundID, s.Number, s.BuyerID, s.Timestamp, s.IsFree, string(s.FreeReason)); err != nil {
			return fmt.Errorf("insert sale %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// ListUserSales returns the user's archived tickets, newest first.
func (r *ArchiveRepository) ListUserSales(ctx context.Context, userID int64, limit int) ([]*models.Sale, error) {
	const q = `
	SELECT id, denomination, round_id, ticket_number, buyer_id, sold_at, is_free, free_reason
	FROM raffle_sales WHERE buyer_id=$1
	ORDER BY sold_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Sale
	for rows.Next() {
		var (
			s      models.Sale
			reason string
		)
		if err := rows.Scan(&s.ID, &s.Denomination, &s.RoundID, &s.Number, &s.BuyerID, &s.Timestamp, &s.IsFree, &reason); err != nil {
			return nil, err
		}
		s.FreeReason = models.FreeReason(reason)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListDraws returns archived draws with winners, newest first. den 0 lists all.
func (r *ArchiveRepository) ListDraws(ctx context.Context, den, limit int) ([]*models.Draw, error) {
	const q = `
	SELECT id, denomination, round_id, drawn_at, entries, forced
	FROM raffle_draws WHERE ($1 = 0 OR denomination = $1)
	ORDER BY drawn_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, den, limit)
	if err != nil {
		return nil, err
	}
	var (
		draws []*models.Draw
		byID  = map[string]*models.Draw{}
	)
	for rows.Next() {
		var d models.Draw
		if err := rows.Scan(&d.ID, &d.Denomination, &d.RoundID, &d.Timestamp, &d.Entries, &d.Forced); err != nil {
			rows.Close()
			return nil, err
		}
		draws = append(draws, &d)
		byID[d.ID] = &d
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(draws) == 0 {
		return draws, nil
	}

	ids := make([]string, len(draws))
	for i, d := range draws {
		ids[i] = d.ID
	}
	const qw = `
	SELECT draw_id, rank, ticket_number, buyer_id, sale_id, prize
	FROM raffle_draw_winners WHERE draw_id = ANY($1)
	ORDER BY draw_id, rank`
	wrows, err := r.db.QueryContext(ctx, qw, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer wrows.Close()
	for wrows.Next() {
		var (
			drawID string
			w      models.Winner
		)
		if err := wrows.Scan(&drawID, &w.Rank, &w.TicketNumber, &w.BuyerID, &w.SaleID, &w.Prize); err != nil {
			return nil, err
		}
		if d, ok := byID[drawID]; ok {
			d.Winners = append(d.Winners, w)
		}
	}
	return draws, wrows.Err()
}
