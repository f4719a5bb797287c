package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/veridocs/reviewd/internal/session"

// Store persists sessions. The filesystem store implements it.
type Store interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	PutSession(ctx context.Context, sess *Session) error
	ListSessions(ctx context.Context) ([]string, error)
}

// Handler executes the work for one stage. Handlers read and write
// stage artifacts through the store; the returned names are recorded
// on the stage result.
type Handler interface {
	// Stage returns the stage this handler manages
	Stage() Stage

	// Execute runs the stage work and returns artifact names
	Execute(ctx context.Context, sess *Session) ([]string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	For Stage
	Fn  func(ctx context.Context, sess *Session) ([]string, error)
}

func (h HandlerFunc) Stage() Stage { return h.For }

func (h HandlerFunc) Execute(ctx context.Context, sess *Session) ([]string, error) {
	return h.Fn(ctx, sess)
}

// Service provides review session management operations.
type Service interface {
	// Create starts a new session at the initialize stage.
	Create(ctx context.Context, metadata map[string]string) (*Session, error)

	// Advance runs the target stage and persists the outcome.
	Advance(ctx context.Context, id string, target Stage) (*Session, error)

	// Status retrieves a session by ID.
	Status(ctx context.Context, id string) (*Session, error)

	// List returns all known session IDs.
	List(ctx context.Context) ([]string, error)

	// Register installs a stage handler. Stages without a handler
	// complete as no-ops.
	Register(h Handler)
}

// service implements the Service interface.
type service struct {
	store    Store
	handlers map[Stage]Handler
	locks    *keyedMutex
	logger   *zap.Logger

	// Telemetry
	tracer         trace.Tracer
	meter          metric.Meter
	advanceCounter metric.Int64Counter
	failureCounter metric.Int64Counter
}

// NewService creates a new session service.
func NewService(store Store, logger *zap.Logger) (Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		store:    store,
		handlers: make(map[Stage]Handler),
		locks:    newKeyedMutex(),
		logger:   logger.Named("session"),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.advanceCounter, err = s.meter.Int64Counter(
		"reviewd.session.advances_total",
		metric.WithDescription("Total number of stage advances"),
		metric.WithUnit("{advance}"),
	)
	if err != nil {
		s.logger.Warn("failed to create advance counter", zap.Error(err))
	}

	s.failureCounter, err = s.meter.Int64Counter(
		"reviewd.session.stage_failures_total",
		metric.WithDescription("Total number of failed stage runs"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		s.logger.Warn("failed to create failure counter", zap.Error(err))
	}
}

func (s *service) Register(h Handler) {
	s.handlers[h.Stage()] = h
}

func (s *service) Create(ctx context.Context, metadata map[string]string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()

	sess := NewSession(uuid.New().String())
	sess.Metadata = metadata

	if err := s.store.PutSession(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	s.logger.Info("session created", zap.String("session_id", sess.ID))
	span.SetAttributes(attribute.String("session_id", sess.ID))
	return sess, nil
}

func (s *service) Status(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.status")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	return s.store.GetSession(ctx, id)
}

func (s *service) List(ctx context.Context) ([]string, error) {
	return s.store.ListSessions(ctx)
}

// Advance runs one stage under the session's lock. The stage result is
// persisted both when the run starts and when it settles, so a crash
// mid-stage leaves a failed-looking running record rather than a
// phantom success. A stage only counts as completed once its result
// has been written back to the store.
func (s *service) Advance(ctx context.Context, id string, target Stage) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.advance")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", id),
		attribute.String("stage", string(target)),
	)

	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := sess.CanAdvance(target); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage gate refused")
		return nil, err
	}

	rerun := sess.Completed(target)

	result := &StageResult{
		Stage:     target,
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	sess.Results[target] = result
	sess.CurrentStage = target
	sess.UpdatedAt = result.StartedAt
	if err := s.store.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist stage start: %w", err)
	}

	artifacts, runErr := s.runHandler(ctx, sess, target)

	result.CompletedAt = time.Now().UTC()
	sess.UpdatedAt = result.CompletedAt
	if runErr != nil {
		result.Status = StatusFailed
		result.Error = runErr.Error()
	} else {
		result.Status = StatusCompleted
		result.Artifacts = artifacts
	}

	if err := s.store.PutSession(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("persist stage result: %w", err)
	}

	if runErr != nil {
		if s.failureCounter != nil {
			s.failureCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("stage", string(target)),
			))
		}
		s.logger.Error("stage failed",
			zap.String("session_id", id),
			zap.String("stage", string(target)),
			zap.Error(runErr),
		)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "stage failed")
		return nil, fmt.Errorf("stage %s: %w", target, runErr)
	}

	if s.advanceCounter != nil {
		s.advanceCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(target)),
			attribute.Bool("rerun", rerun),
		))
	}
	s.logger.Info("stage completed",
		zap.String("session_id", id),
		zap.String("stage", string(target)),
		zap.Int("artifacts", len(artifacts)),
	)

	return sess, nil
}

func (s *service) runHandler(ctx context.Context, sess *Session, target Stage) ([]string, error) {
	h, ok := s.handlers[target]
	if !ok {
		// Stages like human_review have no machine work.
		return nil, nil
	}
	return h.Execute(ctx, sess)
}
