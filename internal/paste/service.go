// Package paste composes the policy store and the expiration evaluator.
package paste

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"vanishbin/internal/apperror"
	"vanishbin/internal/expiry"
	"vanishbin/internal/id"
	"vanishbin/internal/metrics"
	"vanishbin/internal/storage"
)

const (
	DefaultMaxBytes     = 1 << 20
	DefaultStoreTimeout = 5 * time.Second

	createAttempts = 3
)

const (
	msgContent    = "Content is required and must be a non-empty string"
	msgConstraint = "At least one constraint (ttl_seconds or max_views) is required"
)

type Config struct {
	Store        storage.Store
	Evaluator    expiry.Evaluator
	IDs          id.Generator
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
	MaxBytes     int
	StoreTimeout time.Duration
}

type Service struct {
	store        storage.Store
	evaluator    expiry.Evaluator
	ids          id.Generator
	logger       *slog.Logger
	metrics      *metrics.Recorder
	maxBytes     int
	storeTimeout time.Duration
	validate     *validator.Validate
}

// CreateInput is a creation request. A nil limit is absent; a non-nil limit
// must be at least 1.
type CreateInput struct {
	Content    string
	TTLSeconds *int `json:"ttl_seconds" validate:"omitempty,min=1"`
	MaxViews   *int `json:"max_views" validate:"omitempty,min=1"`
}

// View is a successfully read paste.
type View struct {
	Paste storage.Paste
	// ExpiresAt is the deadline in force after this read, zero when none.
	ExpiresAt time.Time
	// RemainingViews is nil when the paste has no view limit.
	RemainingViews *int
}

func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if cfg.IDs == nil {
		cfg.IDs = id.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		store:        cfg.Store,
		evaluator:    cfg.Evaluator,
		ids:          cfg.IDs,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		maxBytes:     cfg.MaxBytes,
		storeTimeout: cfg.StoreTimeout,
		validate:     v,
	}, nil
}

// Mode names the active expiration strategy.
func (s *Service) Mode() string {
	return s.evaluator.Name()
}

// MaxBytes is the largest accepted content size.
func (s *Service) MaxBytes() int {
	return s.maxBytes
}

// Create validates in and persists a new paste with zero views.
func (s *Service) Create(ctx context.Context, in CreateInput, now time.Time) (*storage.Paste, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	p := &storage.Paste{
		Content:   in.Content,
		CreatedAt: now.UTC().Truncate(time.Millisecond),
	}
	if in.TTLSeconds != nil {
		p.TTLSeconds = *in.TTLSeconds
	}
	if in.MaxViews != nil {
		p.MaxViews = *in.MaxViews
	}

	for attempt := 1; attempt <= createAttempts; attempt++ {
		pasteID, err := s.ids.Generate(ctx)
		if err != nil {
			return nil, apperror.Internal(fmt.Errorf("generate id: %w", err))
		}
		p.ID = pasteID

		err = s.call(ctx, "create", func(ctx context.Context) error {
			return s.store.Create(ctx, p)
		})
		if errors.Is(err, storage.ErrDuplicateID) {
			s.logger.Warn("paste id collision", "id", pasteID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, s.storeFailure("create", err)
		}
		s.metrics.PasteCreated()
		s.logger.Debug("paste created", "id", p.ID, "ttl_seconds", p.TTLSeconds, "max_views", p.MaxViews)
		return p, nil
	}
	return nil, apperror.Internal(fmt.Errorf("no unique id after %d attempts", createAttempts))
}

func (s *Service) validateInput(in CreateInput) error {
	if strings.TrimSpace(in.Content) == "" {
		return apperror.ValidationFailed("content", msgContent)
	}
	if len(in.Content) > s.maxBytes {
		return apperror.ValidationFailed("content", fmt.Sprintf("Content exceeds the %d byte limit", s.maxBytes))
	}
	if s.evaluator.RequiresConstraint() && !present(in.TTLSeconds) && !present(in.MaxViews) {
		return apperror.ValidationFailed("", msgConstraint)
	}
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			field := fieldErrs[0].Field()
			return apperror.ValidationFailed(field, field+" must be an integer >= 1")
		}
		return apperror.Internal(fmt.Errorf("validate input: %w", err))
	}
	return nil
}

// present treats zero as absent for the constraint check; the field check
// that follows still rejects it.
func present(n *int) bool {
	return n != nil && *n != 0
}

// Read evaluates the paste at now and applies the resulting mutations: the
// deadline refresh first, then the conditional view increment.
func (s *Service) Read(ctx context.Context, pasteID string, now time.Time) (*View, error) {
	now = now.UTC().Truncate(time.Millisecond)

	p, err := s.get(ctx, pasteID)
	if err != nil {
		return nil, err
	}

	verdict := s.evaluator.Evaluate(*p, now)

	if verdict.RefreshDeadline {
		err := s.call(ctx, "update_deadline", func(ctx context.Context) error {
			return s.store.UpdateDeadline(ctx, pasteID, verdict.ExpiresAt)
		})
		if err != nil {
			return nil, s.missingOr("update_deadline", err)
		}
		p.ExpiresAt = verdict.ExpiresAt
	}

	switch verdict.Outcome {
	case expiry.Expired:
		s.metrics.Read(verdict.Outcome.String())
		return nil, apperror.NotFound(apperror.ReasonExpired)
	case expiry.ViewLimitExceeded:
		s.metrics.Read(verdict.Outcome.String())
		return nil, apperror.NotFound(apperror.ReasonViewLimit)
	}

	var views int
	err = s.call(ctx, "increment_views", func(ctx context.Context) error {
		var err error
		views, err = s.store.IncrementViews(ctx, pasteID, p.MaxViews)
		return err
	})
	if errors.Is(err, storage.ErrViewLimitReached) {
		s.logger.Debug("view increment lost race", "id", pasteID)
		s.metrics.Read(expiry.ViewLimitExceeded.String())
		return nil, apperror.NotFound(apperror.ReasonViewLimit)
	}
	if err != nil {
		return nil, s.missingOr("increment_views", err)
	}
	p.Views = views
	s.metrics.Read(expiry.Available.String())

	v := &View{Paste: *p, ExpiresAt: verdict.ExpiresAt}
	if p.HasViewLimit() {
		v.RemainingViews = expiry.Remaining(p.MaxViews, views)
	}
	return v, nil
}

// Peek evaluates the paste at now without consuming a view or moving its
// deadline.
func (s *Service) Peek(ctx context.Context, pasteID string, now time.Time) (*View, error) {
	now = now.UTC().Truncate(time.Millisecond)

	p, err := s.get(ctx, pasteID)
	if err != nil {
		return nil, err
	}
	verdict := s.evaluator.Evaluate(*p, now)
	switch verdict.Outcome {
	case expiry.Expired:
		return nil, apperror.NotFound(apperror.ReasonExpired)
	case expiry.ViewLimitExceeded:
		return nil, apperror.NotFound(apperror.ReasonViewLimit)
	}
	v := &View{Paste: *p, ExpiresAt: verdict.ExpiresAt}
	if verdict.RefreshDeadline {
		// report the stored deadline, not the one a read would set
		v.ExpiresAt = p.ExpiresAt
	}
	if p.HasViewLimit() {
		v.RemainingViews = expiry.Remaining(p.MaxViews, p.Views)
	}
	return v, nil
}

// Healthy pings the store.
func (s *Service) Healthy(ctx context.Context) error {
	err := s.call(ctx, "ping", s.store.Ping)
	if err != nil {
		return s.storeFailure("ping", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, pasteID string) (*storage.Paste, error) {
	var p *storage.Paste
	err := s.call(ctx, "get", func(ctx context.Context) error {
		var err error
		p, err = s.store.Get(ctx, pasteID)
		return err
	})
	if err != nil {
		return nil, s.missingOr("get", err)
	}
	return p, nil
}

// call runs fn with the store timeout applied.
func (s *Service) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) missingOr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		s.metrics.Read("missing")
		return apperror.NotFound(apperror.ReasonMissing)
	}
	return s.storeFailure(op, err)
}

func (s *Service) storeFailure(op string, err error) error {
	s.metrics.StoreError(op)
	s.logger.Error("store operation failed", "op", op, "error", err)
	return apperror.StoreUnavailable(op, err)
}
