package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"forge/internal/domain"
)

// ReservationStorePG implements domain.ReservationStore.
type ReservationStorePG struct {
	pool *pgxpool.Pool
}

// NewReservationStore creates a reservation store backed by PostgreSQL.
func NewReservationStore(pool *pgxpool.Pool) *ReservationStorePG {
	return &ReservationStorePG{pool: pool}
}

// Record inserts an in-flight reservation keyed by the provider request id.
func (s *ReservationStorePG) Record(ctx context.Context, res *domain.Reservation) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO reservations (request_id, account_id, job_type, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (request_id) DO NOTHING;
`, res.RequestID, res.AccountID, res.JobType, res.Amount)
	return err
}

// Settle marks a reservation resolved. Settling twice is a no-op, so the
// sweeper and a late client re-poll can race safely.
func (s *ReservationStorePG) Settle(ctx context.Context, requestID, outcome string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE reservations
SET settled = TRUE, outcome = $2
WHERE request_id = $1 AND NOT settled;
`, requestID, outcome)
	return err
}

// Get fetches a reservation by request id.
func (s *ReservationStorePG) Get(ctx context.Context, requestID string) (*domain.Reservation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT request_id, account_id, job_type, amount, settled, outcome, created_at
FROM reservations
WHERE request_id = $1;
`, requestID)

	var r domain.Reservation
	if err := row.Scan(&r.RequestID, &r.AccountID, &r.JobType, &r.Amount, &r.Settled, &r.Outcome, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// ListStale returns unsettled reservations created before olderThan.
func (s *ReservationStorePG) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT request_id, account_id, job_type, amount, settled, outcome, created_at
FROM reservations
WHERE NOT settled AND created_at < $1
ORDER BY created_at;
`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.RequestID, &r.AccountID, &r.JobType, &r.Amount, &r.Settled, &r.Outcome, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ domain.ReservationStore = (*ReservationStorePG)(nil)
