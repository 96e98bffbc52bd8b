package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

var (
	// ErrNotFound reports that no ticket exists with the requested id.
	ErrNotFound = errors.New("ticket not found")
	// ErrConcurrencyConflict reports that the stored status did not match the
	// expected status, so the transition was not applied.
	ErrConcurrencyConflict = errors.New("ticket status changed concurrently")
)

// TicketFilter captures agent list parameters.
type TicketFilter struct {
	Status   *domain.TicketStatus
	Urgency  *domain.TicketUrgency
	Category *domain.TicketCategory
	Limit    int
	Offset   int
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Normalized clamps paging to the supported range.
func (f TicketFilter) Normalized() TicketFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// TicketRepository encapsulates ticket persistence. It is the only writer of
// status, processing_attempts and error_message.
type TicketRepository interface {
	Create(ctx context.Context, input domain.NewTicket) (*domain.Ticket, error)
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	// Transition applies update and moves the ticket to next only if its
	// stored status equals expected at the moment of the write.
	Transition(ctx context.Context, id string, expected, next domain.TicketStatus, update domain.TransitionUpdate) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	UpdateAgentFields(ctx context.Context, id string, finalResponse, agentNotes *string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (domain.TicketStats, error)
	History(ctx context.Context, id string) ([]domain.TicketHistory, error)
	ListStale(ctx context.Context, status domain.TicketStatus, updatedBefore time.Time, limit int) ([]domain.Ticket, error)
}

// PgxPool is the subset of *pgxpool.Pool the repository needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ticketRepository struct {
	pool PgxPool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool PgxPool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, customer_email, customer_name,
               category, sentiment_score, urgency, draft_response,
               final_response, agent_notes, resolved_by, resolved_at,
               status, error_message, processing_attempts, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, input domain.NewTicket) (*domain.Ticket, error) {
	query := `
        INSERT INTO tickets (title, description, customer_email, customer_name, status, processing_attempts)
        VALUES ($1,$2,$3,$4,$5,0)
        RETURNING ` + ticketColumns
	return scanTicket(r.pool.QueryRow(ctx, query,
		input.Title,
		input.Description,
		input.CustomerEmail,
		input.CustomerName,
		string(domain.TicketStatusPending),
	))
}

func (r *ticketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) Transition(ctx context.Context, id string, expected, next domain.TicketStatus, update domain.TransitionUpdate) (*domain.Ticket, error) {
	if !domain.IsValidTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, expected, next)
	}
	if !validID(id) {
		return nil, ErrNotFound
	}

	query, args := buildTransition(id, expected, next, update)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.classifyMiss(ctx, tx, id)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := insertHistory(ctx, tx, id, expected, next, ticket.ProcessingAttempts, historyNote(update)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("record history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return ticket, nil
}

// classifyMiss distinguishes a missing row from a status mismatch after the
// conditional update matched nothing.
func (r *ticketRepository) classifyMiss(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConcurrencyConflict
}

func buildTransition(id string, expected, next domain.TicketStatus, update domain.TransitionUpdate) (string, []any) {
	args := []any{string(next)}
	sets := []string{"status=$1", "updated_at=NOW()"}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if update.IncrementAttempts {
		sets = append(sets, "processing_attempts=processing_attempts+1")
	}
	if a := update.Analysis; a != nil {
		add("category", string(a.Category))
		add("sentiment_score", a.SentimentScore)
		add("urgency", string(a.Urgency))
		add("draft_response", a.DraftResponse)
	}
	if update.ClearError {
		sets = append(sets, "error_message=NULL")
	} else if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if res := update.Resolution; res != nil {
		add("final_response", res.FinalResponse)
		add("agent_notes", res.AgentNotes)
		add("resolved_by", res.ResolvedBy)
		sets = append(sets, "resolved_at=NOW()")
	}

	args = append(args, id, string(expected))
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d AND status=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), ticketColumns)
	return query, args
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	filter = filter.Normalized()

	clauses := []string{"1=1"}
	args := []any{}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Urgency != nil {
		args = append(args, string(*filter.Urgency))
		clauses = append(clauses, fmt.Sprintf("urgency=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	return tickets, total, err
}

func (r *ticketRepository) UpdateAgentFields(ctx context.Context, id string, finalResponse, agentNotes *string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `
        UPDATE tickets SET final_response=COALESCE($1, final_response),
            agent_notes=COALESCE($2, agent_notes), updated_at=NOW()
        WHERE id=$3
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, finalResponse, agentNotes, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Stats(ctx context.Context) (domain.TicketStats, error) {
	stats := domain.TicketStats{
		ByStatus:  make(map[domain.TicketStatus]int),
		ByUrgency: make(map[domain.TicketUrgency]int),
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var raw string
		var count int
		if err := rows.Scan(&raw, &count); err != nil {
			rows.Close()
			return stats, err
		}
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = r.pool.Query(ctx, `SELECT urgency, COUNT(*) FROM tickets WHERE urgency IS NOT NULL GROUP BY urgency`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		var count int
		if err := rows.Scan(&raw, &count); err != nil {
			return stats, err
		}
		urgency, err := domain.ParseTicketUrgency(raw)
		if err != nil {
			return stats, err
		}
		stats.ByUrgency[urgency] = count
	}
	return stats, rows.Err()
}

func (r *ticketRepository) ListStale(ctx context.Context, status domain.TicketStatus, updatedBefore time.Time, limit int) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE status=$1 AND updated_at < $2
        ORDER BY updated_at ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, string(status), updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		status   string
		category *string
		urgency  *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.CustomerEmail,
		&ticket.CustomerName,
		&category,
		&ticket.SentimentScore,
		&urgency,
		&ticket.DraftResponse,
		&ticket.FinalResponse,
		&ticket.AgentNotes,
		&ticket.ResolvedBy,
		&ticket.ResolvedAt,
		&status,
		&ticket.ErrorMessage,
		&ticket.ProcessingAttempts,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if ticket.Status, err = domain.ParseTicketStatus(status); err != nil {
		return nil, err
	}
	if category != nil {
		c, err := domain.ParseTicketCategory(*category)
		if err != nil {
			return nil, err
		}
		ticket.Category = &c
	}
	if urgency != nil {
		u, err := domain.ParseTicketUrgency(*urgency)
		if err != nil {
			return nil, err
		}
		ticket.Urgency = &u
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// validID keeps malformed ids away from the uuid column, where Postgres would
// report a syntax error instead of a miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
