package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

const ticketID = "8d0f3c1e-6b7a-4f53-9d3e-0a1b2c3d4e5f"

var ticketCols = []string{
	"id", "title", "description", "customer_email", "customer_name",
	"category", "sentiment_score", "urgency", "draft_response",
	"final_response", "agent_notes", "resolved_by", "resolved_at",
	"status", "error_message", "processing_attempts", "created_at", "updated_at",
}

func ptr[T any](v T) *T { return &v }

func ticketRow(mock pgxmock.PgxPoolIface, status string, attempts int) *pgxmock.Rows {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return mock.NewRows(ticketCols).AddRow(
		ticketID, "Charged twice", "My card was charged twice.", "ada@example.com", (*string)(nil),
		ptr("billing"), ptr(2), ptr("high"), ptr("We are sorry about the duplicate charge."),
		(*string)(nil), (*string)(nil), (*string)(nil), (*time.Time)(nil),
		status, (*string)(nil), attempts, now, now,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, TicketRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewTicketRepository(mock)
}

func TestTransitionCommitsUpdateAndHistory(t *testing.T) {
	mock, repo := newMockRepo(t)

	analysis := &domain.AnalysisResult{
		Category:       domain.CategoryBilling,
		SentimentScore: 2,
		Urgency:        domain.UrgencyHigh,
		DraftResponse:  "We are sorry about the duplicate charge.",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE tickets SET status=\$1, updated_at=NOW\(\), category=\$2, sentiment_score=\$3, urgency=\$4, draft_response=\$5, error_message=NULL WHERE id=\$6 AND status=\$7`).
		WithArgs("ready", "billing", 2, "high", analysis.DraftResponse, ticketID, "processing").
		WillReturnRows(ticketRow(mock, "ready", 1))
	mock.ExpectExec(`INSERT INTO ticket_history`).
		WithArgs(ticketID, "processing", "ready", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ticket, err := repo.Transition(context.Background(), ticketID, domain.TicketStatusProcessing, domain.TicketStatusReady,
		domain.TransitionUpdate{Analysis: analysis, ClearError: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReady, ticket.Status)
	require.NotNil(t, ticket.Category)
	assert.Equal(t, domain.CategoryBilling, *ticket.Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionReportsConflict(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE tickets SET`).
		WithArgs("processing", ticketID, "pending").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(ticketID).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), ticketID, domain.TicketStatusPending, domain.TicketStatusProcessing,
		domain.TransitionUpdate{IncrementAttempts: true})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionReportsNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE tickets SET`).
		WithArgs("processing", ticketID, "pending").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(ticketID).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), ticketID, domain.TicketStatusPending, domain.TicketStatusProcessing,
		domain.TransitionUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionSkipsDatabaseForInvalidInput(t *testing.T) {
	mock, repo := newMockRepo(t)

	_, err := repo.Transition(context.Background(), ticketID, domain.TicketStatusFailed, domain.TicketStatusPending, domain.TransitionUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = repo.Transition(context.Background(), "not-a-uuid", domain.TicketStatusPending, domain.TicketStatusProcessing, domain.TransitionUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsNoRows(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`SELECT .* FROM tickets WHERE id=\$1`).
		WithArgs(ticketID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), ticketID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingTicket(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM tickets`).
		WithArgs(ticketID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), ticketID), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
