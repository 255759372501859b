package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

// PgxIface is the subset of pgxpool.Pool the repositories use; pgxmock
// satisfies it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const defaultListLimit = 100

type pgAttemptLogRepository struct {
	db PgxIface
}

// NewPgAttemptLogRepository creates the PostgreSQL attempt log.
func NewPgAttemptLogRepository(db PgxIface) repository.AttemptLogRepository {
	return &pgAttemptLogRepository{db: db}
}

// Create inserts one attempt record. The table is append-only: every insert
// is a new row, so concurrent dispatches never contend on a lock.
func (r *pgAttemptLogRepository) Create(ctx context.Context, rec *domain.AttemptRecord) (*domain.AttemptRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_attempts (
			id, title, body, channel, address, status, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.Title, rec.Body, rec.Channel, rec.Address, rec.Status, rec.ErrorMessage, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert attempt record: %w", err)
	}
	return rec, nil
}

// List returns attempt records, newest first, optionally filtered by channel
// and status.
func (r *pgAttemptLogRepository) List(ctx context.Context, filter domain.AttemptFilter) ([]*domain.AttemptRecord, error) {
	var conditions []string
	var args []any

	if filter.Channel != nil {
		args = append(args, *filter.Channel)
		conditions = append(conditions, fmt.Sprintf("channel = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT id, title, body, channel, address, status, error_message, created_at FROM notification_attempts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempt records: %w", err)
	}
	defer rows.Close()

	var records []*domain.AttemptRecord
	for rows.Next() {
		rec := &domain.AttemptRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Body, &rec.Channel, &rec.Address,
			&rec.Status, &rec.ErrorMessage, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attempt record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attempt record rows error: %w", err)
	}
	return records, nil
}
