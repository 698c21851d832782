package dataops

import (
	"context"

	restrictionsvc "github.com/dataguard/gdpr-engine/internal/service/restriction"
)

// restrictionAdapter bridges the restriction manager to the narrow checker
// interface the data operator consumes.
type restrictionAdapter struct {
	svc restrictionsvc.Service
}

// NewRestrictionChecker adapts the restriction service for data operations.
func NewRestrictionChecker(svc restrictionsvc.Service) RestrictionChecker {
	return &restrictionAdapter{svc: svc}
}

func (a *restrictionAdapter) IsRestricted(ctx context.Context, email, op, table string) (bool, error) {
	result, err := a.svc.Check(ctx, email, op, table)
	if err != nil {
		return false, err
	}
	return result.Restricted, nil
}
