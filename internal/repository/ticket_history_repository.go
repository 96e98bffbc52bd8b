package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

// insertHistory records one audit row inside the transaction that applied
// the status change.
func insertHistory(ctx context.Context, tx pgx.Tx, ticketID string, from, to domain.TicketStatus, attempt int, note *string) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, from_status, to_status, attempt, note)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := tx.Exec(ctx, query, ticketID, string(from), string(to), attempt, note)
	return err
}

func historyNote(update domain.TransitionUpdate) *string {
	if update.Note != "" {
		note := update.Note
		return &note
	}
	return update.ErrorMessage
}

func (r *ticketRepository) History(ctx context.Context, id string) ([]domain.TicketHistory, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	const query = `
        SELECT id, ticket_id, from_status, to_status, attempt, note, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			entry    domain.TicketHistory
			from, to string
		)
		if err := rows.Scan(&entry.ID, &entry.TicketID, &from, &to, &entry.Attempt, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if entry.FromStatus, err = domain.ParseTicketStatus(from); err != nil {
			return nil, err
		}
		if entry.ToStatus, err = domain.ParseTicketStatus(to); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
