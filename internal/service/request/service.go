package request

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/request"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/telemetry"
)

type service struct {
	repo       RequestRepository
	operator   DataOperator
	notifier   Notifier
	auditor    AuditRecorder
	transactor Transactor
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewService creates the request engine
func NewService(
	repo RequestRepository,
	operator DataOperator,
	notifier Notifier,
	auditor AuditRecorder,
	transactor Transactor,
	publisher EventPublisher,
	logger *zap.Logger,
) Service {
	return &service{
		repo:       repo,
		operator:   operator,
		notifier:   notifier,
		auditor:    auditor,
		transactor: transactor,
		publisher:  publisher,
		logger:     logger,
	}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, req CreateRequest) (*Response, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	requestType, err := request.ParseType(req.Type)
	if err != nil {
		return nil, err
	}

	var r *request.Request
	err = s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		open, err := s.repo.HasOpenRequest(ctx, email.String(), requestType)
		if err != nil {
			return err
		}
		if open {
			return errors.ErrDuplicateRequest
		}

		r, err = request.New(email, requestType, req.IPAddress, req.UserAgent)
		if err != nil {
			return err
		}
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}

		entry, err := audit.NewEntry(audit.ActionRequestCreated, email.String())
		if err != nil {
			return err
		}
		entry.WithSubject(email.String()).
			WithRequest(r.ID).
			WithActor(req.IPAddress, req.UserAgent).
			WithDetail("request_type", string(requestType)).
			WithDetail("deadline_at", r.DeadlineAt)
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subject request created",
		zap.String("request_id", r.ID.String()),
		zap.String("type", string(r.Type)),
	)
	s.publisher.Publish(ctx, webhook.EventRequestCreated, toResponse(r))
	s.notifier.NotifyRequestCreated(ctx, r)
	return toResponse(r), nil
}

func (s *service) Process(ctx context.Context, id uuid.UUID, req ProcessRequest) (*ProcessResult, error) {
	if req.PerformedBy == "" {
		return nil, errors.NewValidationError("MISSING_ACTOR", "performed_by is required")
	}

	var r *request.Request
	err := s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.StartProcessing(req.PerformedBy); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}

		entry, err := audit.NewEntry(audit.ActionRequestProcessed, req.PerformedBy)
		if err != nil {
			return err
		}
		entry.WithSubject(r.SubjectEmail.String()).
			WithRequest(r.ID).
			WithActor(req.IPAddress, "").
			WithDetail("request_type", string(r.Type))
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, webhook.EventRequestProcessing, toResponse(r))

	// Rectification and restriction requests stay IN_PROGRESS until the
	// dedicated operation closes them via Complete.
	if r.Type.RequiresManualClose() {
		return &ProcessResult{Request: toResponse(r)}, nil
	}

	fileURL, fileSize, runErr := s.runOperator(ctx, r, req.PerformedBy)
	if runErr != nil {
		s.logger.Warn("request processing failed, reverting to pending",
			zap.String("request_id", r.ID.String()),
			zap.Error(runErr),
		)
		if revertErr := s.transactor.InTransaction(ctx, func(ctx context.Context) error {
			if err := r.RevertToPending(); err != nil {
				return err
			}
			return s.repo.Update(ctx, r)
		}); revertErr != nil {
			return nil, revertErr
		}
		telemetry.RequestsProcessed.WithLabelValues(string(r.Type), "failed").Inc()
		return &ProcessResult{Request: toResponse(r), Error: runErr.Error()}, nil
	}

	err = s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		if err := r.Complete(fileURL, fileSize); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}

		entry, err := audit.NewEntry(audit.ActionRequestCompleted, req.PerformedBy)
		if err != nil {
			return err
		}
		entry.WithSubject(r.SubjectEmail.String()).
			WithRequest(r.ID).
			WithDetail("request_type", string(r.Type))
		if fileURL != "" {
			entry.WithDetail("result_file_url", fileURL)
		}
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subject request completed",
		zap.String("request_id", r.ID.String()),
		zap.String("type", string(r.Type)),
	)
	telemetry.RequestsProcessed.WithLabelValues(string(r.Type), "completed").Inc()
	s.publisher.Publish(ctx, webhook.EventRequestCompleted, toResponse(r))
	s.notifier.NotifyRequestCompleted(ctx, r)
	return &ProcessResult{Request: toResponse(r)}, nil
}

// runOperator routes the request to the data operation it stands for.
func (s *service) runOperator(ctx context.Context, r *request.Request, performedBy string) (string, int64, error) {
	switch r.Type {
	case request.TypeDataExport, request.TypeDataAccess, request.TypeDataPortability:
		return s.operator.ExportFor(ctx, r.SubjectEmail.String(), r.ID, performedBy)
	case request.TypeDataErasure:
		_, err := s.operator.EraseFor(ctx, r.SubjectEmail.String(), r.ID, performedBy)
		return "", 0, err
	default:
		return "", 0, errors.NewInternalError("no data operation for request type " + string(r.Type))
	}
}

func (s *service) Complete(ctx context.Context, id uuid.UUID, performedBy string) (*Response, error) {
	if performedBy == "" {
		return nil, errors.NewValidationError("MISSING_ACTOR", "performed_by is required")
	}

	var r *request.Request
	err := s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Complete("", 0); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}

		entry, err := audit.NewEntry(audit.ActionRequestCompleted, performedBy)
		if err != nil {
			return err
		}
		entry.WithSubject(r.SubjectEmail.String()).
			WithRequest(r.ID).
			WithDetail("request_type", string(r.Type))
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, webhook.EventRequestCompleted, toResponse(r))
	s.notifier.NotifyRequestCompleted(ctx, r)
	return toResponse(r), nil
}

func (s *service) Reject(ctx context.Context, id uuid.UUID, reason, performedBy string) (*Response, error) {
	if performedBy == "" {
		return nil, errors.NewValidationError("MISSING_ACTOR", "performed_by is required")
	}

	var r *request.Request
	err := s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Reject(reason, performedBy); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}

		entry, err := audit.NewEntry(audit.ActionRequestRejected, performedBy)
		if err != nil {
			return err
		}
		entry.WithSubject(r.SubjectEmail.String()).
			WithRequest(r.ID).
			WithDetail("request_type", string(r.Type)).
			WithDetail("rejection_reason", reason)
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, webhook.EventRequestRejected, toResponse(r))
	s.notifier.NotifyRequestRejected(ctx, r)
	return toResponse(r), nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*Response, error) {
	var r *request.Request
	err := s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Cancel(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}

		entry, err := audit.NewEntry(audit.ActionRequestProcessed, r.SubjectEmail.String())
		if err != nil {
			return err
		}
		entry.WithSubject(r.SubjectEmail.String()).
			WithRequest(r.ID).
			WithDetail("request_type", string(r.Type)).
			WithDetail("operation", "request_cancelled")
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return toResponse(r), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Response, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(r), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]*Response, error) {
	repoFilter := RepoFilter{
		SubjectEmail: filter.Email,
		OverdueOnly:  filter.OverdueOnly,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	if filter.Status != "" {
		repoFilter.Status = request.Status(filter.Status)
	}
	if filter.Type != "" {
		requestType, err := request.ParseType(filter.Type)
		if err != nil {
			return nil, err
		}
		repoFilter.Type = requestType
	}

	rows, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	return toResponses(rows), nil
}

func (s *service) Overdue(ctx context.Context) ([]*Response, error) {
	rows, err := s.repo.FindOverdue(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return toResponses(rows), nil
}

func toResponses(rows []*request.Request) []*Response {
	out := make([]*Response, len(rows))
	for i, r := range rows {
		out[i] = toResponse(r)
	}
	return out
}
