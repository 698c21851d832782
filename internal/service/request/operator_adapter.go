package request

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/service/dataops"
)

// dataOperatorAdapter bridges the data operator service into the narrow
// DataOperator dependency the request engine consumes.
type dataOperatorAdapter struct {
	ops dataops.Service
}

// NewDataOperator adapts a dataops.Service for the request engine
func NewDataOperator(ops dataops.Service) DataOperator {
	return &dataOperatorAdapter{ops: ops}
}

func (a *dataOperatorAdapter) ExportFor(ctx context.Context, email string, requestID uuid.UUID, requester string) (string, int64, error) {
	res, err := a.ops.Export(ctx, dataops.ExportRequest{
		Email:     email,
		Format:    "json",
		Requester: requester,
		RequestID: &requestID,
	})
	if err != nil {
		return "", 0, err
	}
	return res.FilePath, res.FileSize, nil
}

func (a *dataOperatorAdapter) EraseFor(ctx context.Context, email string, requestID uuid.UUID, requester string) (int64, error) {
	res, err := a.ops.Erase(ctx, dataops.EraseRequest{
		Email:              email,
		Requester:          requester,
		RequestID:          &requestID,
		FromErasureRequest: true,
	})
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, errors.NewInternalError("erasure finished with table errors: " + strings.Join(res.Errors, "; "))
	}
	return res.TotalDeleted + res.TotalAnonymized, nil
}
