package database

import (
	"context"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// HealthStore backs the readiness probe with connectivity and backlog
// counters.
type HealthStore struct {
	db *ConnectionPool
}

// NewHealthStore creates a new health store.
func NewHealthStore(db *ConnectionPool) *HealthStore {
	return &HealthStore{db: db}
}

// Ping verifies database connectivity.
func (s *HealthStore) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Backlog counts open rights requests and how many of them have passed
// their statutory deadline.
func (s *HealthStore) Backlog(ctx context.Context) (int, int, error) {
	var pending, overdue int
	err := s.db.DB(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE deadline_at < NOW())
		FROM gdpr_requests
		WHERE status IN ('PENDING', 'IN_PROGRESS')
	`).Scan(&pending, &overdue)
	if err != nil {
		return 0, 0, errors.NewInternalError("failed to count request backlog").WithCause(err)
	}
	return pending, overdue, nil
}
