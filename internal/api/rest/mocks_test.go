package rest

import (
	"context"

	"github.com/google/uuid"

	domainconsent "github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/service/consent"
	"github.com/dataguard/gdpr-engine/internal/service/request"
)

// stubConsentService records inputs and returns canned responses.
type stubConsentService struct {
	grantReq       *consent.GrantRequest
	withdrawReq    *consent.WithdrawRequest
	withdrawAllReq *consent.WithdrawAllRequest
	response       *consent.Response
	withdrawAll    *consent.WithdrawAllResponse
	status         *consent.StatusResponse
	hasActive      bool
	err            error
}

func (s *stubConsentService) Grant(_ context.Context, req consent.GrantRequest) (*consent.Response, error) {
	s.grantReq = &req
	return s.response, s.err
}

func (s *stubConsentService) Withdraw(_ context.Context, req consent.WithdrawRequest) (*consent.Response, error) {
	s.withdrawReq = &req
	return s.response, s.err
}

func (s *stubConsentService) WithdrawAll(_ context.Context, req consent.WithdrawAllRequest) (*consent.WithdrawAllResponse, error) {
	s.withdrawAllReq = &req
	return s.withdrawAll, s.err
}

func (s *stubConsentService) GetStatus(_ context.Context, _ string) (*consent.StatusResponse, error) {
	return s.status, s.err
}

func (s *stubConsentService) HasActiveConsent(_ context.Context, _ string, _ domainconsent.Type) (bool, error) {
	return s.hasActive, s.err
}

func (s *stubConsentService) ExpireConsents(_ context.Context) (int, error) {
	return 0, s.err
}

// stubRequestService records inputs and returns canned responses.
type stubRequestService struct {
	createReq  *request.CreateRequest
	processReq *request.ProcessRequest
	processID  uuid.UUID
	rejectedBy string
	response   *request.Response
	process    *request.ProcessResult
	list       []*request.Response
	err        error
}

func (s *stubRequestService) Create(_ context.Context, req request.CreateRequest) (*request.Response, error) {
	s.createReq = &req
	return s.response, s.err
}

func (s *stubRequestService) Process(_ context.Context, id uuid.UUID, req request.ProcessRequest) (*request.ProcessResult, error) {
	s.processID = id
	s.processReq = &req
	return s.process, s.err
}

func (s *stubRequestService) Complete(_ context.Context, _ uuid.UUID, _ string) (*request.Response, error) {
	return s.response, s.err
}

func (s *stubRequestService) Reject(_ context.Context, _ uuid.UUID, _ string, performedBy string) (*request.Response, error) {
	s.rejectedBy = performedBy
	return s.response, s.err
}

func (s *stubRequestService) Cancel(_ context.Context, _ uuid.UUID) (*request.Response, error) {
	return s.response, s.err
}

func (s *stubRequestService) Get(_ context.Context, _ uuid.UUID) (*request.Response, error) {
	return s.response, s.err
}

func (s *stubRequestService) List(_ context.Context, _ request.ListFilter) ([]*request.Response, error) {
	return s.list, s.err
}

func (s *stubRequestService) Overdue(_ context.Context) ([]*request.Response, error) {
	return s.list, s.err
}

// stubHealth reports configurable connectivity and backlog.
type stubHealth struct {
	pingErr error
	pending int
	overdue int
}

func (s *stubHealth) Ping(_ context.Context) error {
	return s.pingErr
}

func (s *stubHealth) Backlog(_ context.Context) (int, int, error) {
	return s.pending, s.overdue, nil
}
