package applications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/notify"
)

// Service handles insurance and loan applications.
type Service struct {
	store   *Store
	audit   *audit.Store
	events  notify.Publisher
	logger  *zap.Logger
	nowFunc func() time.Time
}

func NewService(store *Store, auditStore *audit.Store, events notify.Publisher, logger *zap.Logger) *Service {
	if events == nil {
		events = notify.Nop{}
	}
	return &Service{store: store, audit: auditStore, events: events, logger: logger, nowFunc: time.Now}
}

// Submit stores a new application in pending status with empty admin notes.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*Application, error) {
	if !req.Type.Valid() {
		return nil, apperr.Validation("type must be insurance or loan")
	}
	if req.SubType == "" {
		return nil, apperr.Validation("subType is required")
	}
	now := s.nowFunc().UTC()
	a := &Application{
		ID:              uuid.NewString(),
		Type:            req.Type,
		SubType:         req.SubType,
		UserID:          userID,
		PersonalInfo:    req.PersonalInfo,
		FinancialInfo:   req.FinancialInfo,
		SpecificDetails: req.SpecificDetails,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("application submitted",
		zap.String("application_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("sub_type", a.SubType),
		zap.String("user_id", userID))
	s.events.Publish(ctx, notify.Event{
		Type:       notify.ApplicationSubmitted,
		UserID:     userID,
		Email:      a.PersonalInfo.Email,
		Name:       a.PersonalInfo.FullName,
		EntityID:   a.ID,
		Status:     string(a.Status),
		OccurredAt: now,
	})
	return a, nil
}

func (s *Service) ListUserApplications(ctx context.Context, userID string) ([]Application, error) {
	return s.store.ListByUser(ctx, userID)
}

// GetApplication returns an application owned by userID, NotFound otherwise.
func (s *Service) GetApplication(ctx context.Context, id, userID string) (*Application, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.UserID != userID {
		return nil, apperr.NotFound("application not found")
	}
	return a, nil
}

func (s *Service) ListApplications(ctx context.Context, filter ListFilter) ([]Application, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("invalid status %q", filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperr.Validation("invalid type %q", filter.Type)
	}
	return s.store.List(ctx, filter)
}

// SetApplicationStatus overwrites status and admin notes. The write is
// conditioned on the status last read and audited in the same transaction.
func (s *Service) SetApplicationStatus(ctx context.Context, id string, status Status, notes string, actor audit.Actor) (*Application, error) {
	if !status.Valid() {
		return nil, apperr.Validation("invalid status %q", status)
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("application not found")
	}

	for attempt := 0; ; attempt++ {
		entry := audit.NewEntry(audit.EntityApplication, id, actor, string(a.Status), string(status), notes, s.nowFunc())
		put, err := s.audit.PutItem(entry)
		if err != nil {
			return nil, err
		}
		err = s.store.UpdateStatus(ctx, id, a.Status, status, notes, put)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrStatusMismatch) {
			return nil, err
		}
		if attempt > 0 {
			return nil, apperr.Conflict("application status changed concurrently, please retry")
		}
		if a, err = s.store.Get(ctx, id); err != nil {
			return nil, err
		}
		if a == nil {
			return nil, apperr.NotFound("application not found")
		}
	}

	prev := a.Status
	updated, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.NotFound("application not found")
	}
	s.logger.Info("application status changed",
		zap.String("application_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(status)),
		zap.String("actor", actor.ID))
	if prev != status {
		s.events.Publish(ctx, notify.Event{
			Type:       notify.ApplicationStatusChanged,
			UserID:     updated.UserID,
			Email:      updated.PersonalInfo.Email,
			Name:       updated.PersonalInfo.FullName,
			EntityID:   id,
			Status:     string(status),
			Notes:      notes,
			OccurredAt: updated.UpdatedAt,
		})
	}
	return updated, nil
}
