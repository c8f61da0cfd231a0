// Package counter provides the document numbering service used by orders,
// invoices and journal entries.
package counter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"erpcounter/internal/core/apperror"
	corecounter "erpcounter/internal/core/counter"
	"erpcounter/pkg/logger"
)

var tracer = otel.Tracer("erpcounter/counter")

// Request carries the caller context of one GetNextCounter call.
type Request struct {
	SequenceCode string
	// Site is used as the scope key by SITE-level definitions.
	Site string
	// ReferenceDate selects the reset window; zero means now.
	ReferenceDate time.Time
	// Complement is embedded by COMPLEMENT components and partitions the counter.
	Complement string
}

// UnresolvedSequenceCode labels failures whose sequence code did not resolve
// to a definition, so caller input never becomes a metric label.
const UnresolvedSequenceCode = "unknown"

// Recorder receives per-call outcomes (metrics). The sequence code passed to
// it is always a defined one or UnresolvedSequenceCode.
type Recorder interface {
	ObserveIssued(sequenceCode string, elapsed time.Duration)
	ObserveFailed(sequenceCode, reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveIssued(string, time.Duration) {}
func (nopRecorder) ObserveFailed(string, string)        {}

// Option configures the Service.
type Option func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the clock used when a request carries no reference date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service issues document numbers from counter definitions.
// It holds no counter state: every call re-reads the store.
type Service struct {
	definitions corecounter.DefinitionStore
	sequences   corecounter.SequenceStore
	issues      corecounter.IssueLog
	recorder    Recorder
	now         func() time.Time
}

// NewService creates a new counter service.
func NewService(
	definitions corecounter.DefinitionStore,
	sequences corecounter.SequenceStore,
	opts ...Option,
) *Service {
	s := &Service{
		definitions: definitions,
		sequences:   sequences,
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetNextCounter issues the next number for req.SequenceCode.
//
// A template without a SEQUENCE_NUMBER component yields "" and leaves the
// store untouched. Every failure is logged and returned to the caller; an
// overflow leaves the counter unchanged.
func (s *Service) GetNextCounter(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "counter.GetNextCounter",
		trace.WithAttributes(attribute.String("counter.sequence_code", req.SequenceCode)))
	defer span.End()

	value, resolved, err := s.next(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		label := UnresolvedSequenceCode
		if resolved {
			label = req.SequenceCode
		}
		s.recorder.ObserveFailed(label, failureReason(err))
		return "", err
	}

	s.recorder.ObserveIssued(req.SequenceCode, time.Since(start))
	return value, nil
}

// next reports whether req.SequenceCode resolved to a definition alongside
// the result.
func (s *Service) next(ctx context.Context, req Request) (string, bool, error) {
	log := logger.FromContext(ctx).WithComponent("counter").With("sequence_code", req.SequenceCode)

	def, err := s.definitions.Lookup(ctx, req.SequenceCode)
	if err != nil {
		log.Errorw("counter definition lookup failed", "error", err)
		return "", false, err
	}

	idx := def.SequenceIndex()
	if idx < 0 {
		log.Debugw("template has no sequence number component")
		return "", true, nil
	}
	maxDigits := def.SequenceDigits()

	complement := req.Complement
	if def.SuppressesComplement() {
		complement = ""
	}

	date := req.ReferenceDate
	if date.IsZero() {
		date = s.now()
	}

	key := corecounter.Key{
		SequenceCode: def.SequenceCode,
		Scope:        corecounter.ResolveScope(def.DefinitionLevel, req.Site),
		Period:       corecounter.ResolvePeriod(def.ResetPolicy, date),
		Complement:   complement,
	}

	seq, err := s.sequences.IncrementAndGet(ctx, key, maxDigits)
	if err != nil {
		log.Errorw("counter increment failed",
			"scope_key", key.Scope,
			"period_key", key.Period,
			"max_digits", maxDigits,
			"error", err,
		)
		return "", true, err
	}

	out := corecounter.Format(seq, def, date, key.Scope, complement)
	if len(out.Unrendered) > 0 {
		log.Warnw("template components have no renderer", "components", out.Unrendered)
	}
	if out.NotNumeric {
		log.Warnw("numeric template produced a non-integer value", "value", out.Value)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("counter.scope_key", key.Scope),
		attribute.Int("counter.period_key", key.Period),
	)
	return out.Value, true, nil
}

func failureReason(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return apperror.CodeInternal
}
