// Package reconciliation implements the field verification workflow:
// comparing declared and observed values, tracking field resolution and
// gating finalization of an investigation.
package reconciliation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/banking/verification-service/internal/domain"
	"github.com/banking/verification-service/internal/events"
	"github.com/banking/verification-service/internal/geo"
	"github.com/banking/verification-service/internal/metrics"
	"github.com/banking/verification-service/internal/pkg/logger"
	"github.com/banking/verification-service/internal/store"
	"github.com/banking/verification-service/internal/threshold"
)

// Operation names used in rejections, logs and metrics
const (
	OpInitialize = "initialize"
	OpObserve    = "observe"
	OpConfirm    = "confirm"
	OpAdjust     = "adjust"
	OpBlock      = "block"
	OpValidate   = "validate"
	OpFinalize   = "finalize"
)

// DefaultThreshold applies when neither the field nor the investigation
// configures one
const DefaultThreshold = 15.0

// errUnchanged lets a store update finish without scheduling a flush
var errUnchanged = errors.New("unchanged")

// FieldRef addresses one field record
type FieldRef struct {
	ApplicationID string
	SectionID     string
	FieldID       string
}

// ValidationResult is the outcome of checking a field against its threshold
type ValidationResult struct {
	FieldID    string             `json:"fieldId"`
	Difference *float64           `json:"difference"`
	Severity   domain.Severity    `json:"severity"`
	Threshold  float64            `json:"threshold"`
	Exceeds    bool               `json:"exceeds"`
	Escalated  bool               `json:"escalated"`
	Status     domain.FieldStatus `json:"status"`
}

// Options configures a Service
type Options struct {
	DefaultThreshold float64
	Policy           *Policy
	Tracer           trace.Tracer
	Now              func() time.Time
}

// Service is the only writer of investigations
type Service struct {
	store            *store.Store
	policy           *Policy
	geo              geo.Provider
	publisher        events.Publisher
	defaultThreshold float64
	now              func() time.Time

	log    *logger.Logger
	tracer trace.Tracer
}

// NewService creates the reconciliation service
func NewService(
	st *store.Store,
	provider geo.Provider,
	publisher events.Publisher,
	log *logger.Logger,
	opts Options,
) *Service {
	if opts.DefaultThreshold <= 0 {
		opts.DefaultThreshold = DefaultThreshold
	}
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/banking/verification-service/internal/reconciliation")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if publisher == nil {
		publisher = events.Noop{}
	}

	return &Service{
		store:            st,
		policy:           opts.Policy,
		geo:              provider,
		publisher:        publisher,
		defaultThreshold: opts.DefaultThreshold,
		now:              opts.Now,
		log:              log.Named("reconciliation"),
		tracer:           opts.Tracer,
	}
}

// Restore loads the persisted store and refreshes derived aggregates
func (s *Service) Restore(ctx context.Context) (int, error) {
	n, err := s.store.Restore(ctx)
	if err != nil {
		return 0, err
	}
	s.store.Range(recompute)
	return n, nil
}

// Initialize creates the investigation for an application. A second call
// for the same application returns the existing investigation untouched
// and created=false.
func (s *Service) Initialize(ctx context.Context, applicationID string, data ApplicationData, rules []domain.ThresholdRule) (inv *domain.Investigation, created bool, err error) {
	ctx, span := s.startSpan(ctx, OpInitialize, applicationID)
	defer func() { s.finish(ctx, span, OpInitialize, FieldRef{ApplicationID: applicationID}, err) }()

	if strings.TrimSpace(applicationID) == "" {
		return nil, false, domain.Reject(OpInitialize, domain.ErrInvalidValue, "application id is required")
	}
	if existing, ok := s.store.Get(applicationID); ok {
		return existing, false, nil
	}

	built, buildErr := s.policy.Build(applicationID, data, rules, s.now())
	if buildErr != nil {
		return nil, false, domain.Reject(OpInitialize, buildErr, "application %s: %v", applicationID, buildErr)
	}

	inv, created = s.store.Create(applicationID, func() *domain.Investigation { return built })
	if created {
		fields := 0
		for _, section := range inv.Sections {
			fields += len(section.Fields)
		}
		s.log.InvestigationInitialized(applicationID, len(inv.Sections), fields)
	}
	return inv, created, nil
}

// Observe records the value seen on site and returns the field to pending.
// Confirmed and blocked fields reject new observations.
func (s *Service) Observe(ctx context.Context, ref FieldRef, value interface{}) (err error) {
	ctx, span := s.startSpan(ctx, OpObserve, ref.ApplicationID)
	defer func() { s.finish(ctx, span, OpObserve, ref, err) }()

	return s.mutate(OpObserve, ref, func(_ *domain.Investigation, f *domain.FieldRecord) error {
		if !f.CanObserve() {
			return domain.Reject(OpObserve, domain.ErrFieldLocked, "field %s is %s", f.ID, f.Status)
		}
		v, err := coerce(f, value)
		if err != nil {
			return domain.Reject(OpObserve, err, "field %s: %v", f.ID, err)
		}

		from := f.Status
		f.ObservedValue = v
		f.Status = domain.FieldStatusPending
		f.Timestamp = s.now()
		s.fieldLog(ref).FieldTransition(OpObserve, f.ID, string(from), string(f.Status))
		return nil
	})
}

// Confirm accepts the observed value of a pending field
func (s *Service) Confirm(ctx context.Context, ref FieldRef) (err error) {
	ctx, span := s.startSpan(ctx, OpConfirm, ref.ApplicationID)
	defer func() { s.finish(ctx, span, OpConfirm, ref, err) }()

	return s.mutate(OpConfirm, ref, func(_ *domain.Investigation, f *domain.FieldRecord) error {
		switch {
		case f.Status == domain.FieldStatusBlocked:
			return domain.Reject(OpConfirm, domain.ErrFieldLocked, "field %s is blocked", f.ID)
		case f.Status != domain.FieldStatusPending:
			return domain.Reject(OpConfirm, domain.ErrInvalidTransition, "field %s is %s", f.ID, f.Status)
		case f.ObservedValue.IsEmpty():
			return domain.Reject(OpConfirm, domain.ErrEmptyObservedValue, "field %s has no observed value", f.ID)
		}

		f.Status = domain.FieldStatusConfirmed
		f.Timestamp = s.now()
		s.fieldLog(ref).FieldTransition(OpConfirm, f.ID, string(domain.FieldStatusPending), string(f.Status))
		return nil
	})
}

// Adjust records a corrected value with a mandatory comment and stores the
// detected difference for the field
func (s *Service) Adjust(ctx context.Context, ref FieldRef, value interface{}, comment string, evidence ...domain.Evidence) (err error) {
	ctx, span := s.startSpan(ctx, OpAdjust, ref.ApplicationID)
	defer func() { s.finish(ctx, span, OpAdjust, ref, err) }()

	var diff domain.DetectedDifference
	err = s.mutate(OpAdjust, ref, func(inv *domain.Investigation, f *domain.FieldRecord) error {
		comment = strings.TrimSpace(comment)
		if comment == "" {
			return domain.Reject(OpAdjust, domain.ErrCommentRequired, "a comment is required to adjust field %s", f.ID)
		}
		if !f.CanAdjust() {
			return domain.Reject(OpAdjust, domain.ErrFieldLocked, "field %s is %s", f.ID, f.Status)
		}
		v, err := coerce(f, value)
		if err != nil {
			return domain.Reject(OpAdjust, err, "field %s: %v", f.ID, err)
		}
		if v.IsEmpty() {
			return domain.Reject(OpAdjust, domain.ErrEmptyObservedValue, "field %s: adjusted value is empty", f.ID)
		}

		now := s.now()
		from := f.Status
		f.ObservedValue = v
		f.Status = domain.FieldStatusAdjusted
		f.Comment = comment
		f.Evidence = append(f.Evidence, stampEvidence(evidence, now)...)
		f.Timestamp = now

		diff = s.recordDifference(inv, f, false, now)
		s.fieldLog(ref).FieldTransition(OpAdjust, f.ID, string(from), string(f.Status))
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TypeFieldAdjusted, ref.ApplicationID, diff).ForField(ref.SectionID, ref.FieldID))
	return nil
}

// Block closes a field that cannot be verified. The reason is kept as the
// field comment and the store is flushed immediately.
func (s *Service) Block(ctx context.Context, ref FieldRef, reason string) (err error) {
	ctx, span := s.startSpan(ctx, OpBlock, ref.ApplicationID)
	defer func() { s.finish(ctx, span, OpBlock, ref, err) }()

	reason = strings.TrimSpace(reason)
	err = s.mutate(OpBlock, ref, func(_ *domain.Investigation, f *domain.FieldRecord) error {
		if reason == "" {
			return domain.Reject(OpBlock, domain.ErrCommentRequired, "a reason is required to block field %s", f.ID)
		}
		from := f.Status
		f.Status = domain.FieldStatusBlocked
		f.Comment = reason
		f.Timestamp = s.now()
		s.fieldLog(ref).FieldTransition(OpBlock, f.ID, string(from), string(f.Status))
		return nil
	})
	if err != nil {
		return err
	}

	s.flushNow(ctx, OpBlock)
	s.publish(ctx, events.New(events.TypeFieldBlocked, ref.ApplicationID, map[string]string{"reason": reason}).ForField(ref.SectionID, ref.FieldID))
	return nil
}

// Validate compares the observed value with its threshold. A pending field
// whose difference exceeds the threshold is escalated to adjusted; an
// adjusted field gets its stored difference refreshed.
func (s *Service) Validate(ctx context.Context, ref FieldRef) (result *ValidationResult, err error) {
	ctx, span := s.startSpan(ctx, OpValidate, ref.ApplicationID)
	defer func() { s.finish(ctx, span, OpValidate, ref, err) }()

	var escalated *domain.DetectedDifference
	err = s.mutate(OpValidate, ref, func(inv *domain.Investigation, f *domain.FieldRecord) error {
		if f.ObservedValue.IsEmpty() {
			return domain.Reject(OpValidate, domain.ErrEmptyObservedValue, "field %s has no observed value", f.ID)
		}

		difference, severity, limit := threshold.Evaluate(f, ruleFor(inv, f.ID), s.defaultThreshold)
		result = &ValidationResult{
			FieldID:    f.ID,
			Difference: difference,
			Severity:   severity,
			Threshold:  limit,
			Exceeds:    difference != nil && threshold.ExceedsThreshold(*difference, limit),
			Status:     f.Status,
		}

		now := s.now()
		switch {
		case result.Exceeds && f.Status == domain.FieldStatusPending:
			f.Status = domain.FieldStatusAdjusted
			f.Comment = domain.AutoDetectedComment
			f.Timestamp = now
			d := s.recordDifference(inv, f, true, now)
			escalated = &d
			result.Escalated = true
			result.Status = f.Status
			s.fieldLog(ref).FieldTransition(OpValidate, f.ID, string(domain.FieldStatusPending), string(f.Status))
			return nil
		case f.Status == domain.FieldStatusAdjusted:
			auto := false
			if prev, ok := inv.Diffs[f.ID]; ok {
				auto = prev.AutoDetected
			}
			s.recordDifference(inv, f, auto, now)
			return nil
		}
		return errUnchanged
	})
	if err != nil {
		return nil, err
	}

	if escalated != nil {
		s.publish(ctx, events.New(events.TypeFieldAdjusted, ref.ApplicationID, *escalated).ForField(ref.SectionID, ref.FieldID))
	}
	return result, nil
}

// CanFinalize reports whether the investigation may be closed: no blocked
// fields and a valid geolocation. Both conditions are always evaluated so
// the caller can show every remediation at once.
func (s *Service) CanFinalize(ctx context.Context, applicationID string) (*domain.FinalizationCheck, error) {
	var blocked int
	var finalized bool
	if err := s.store.View(applicationID, func(inv *domain.Investigation) {
		blocked = inv.Summary.BlockedFields
		finalized = inv.IsFinalized()
	}); err != nil {
		return nil, domain.Reject("can_finalize", err, "investigation %s not found", applicationID)
	}

	check := &domain.FinalizationCheck{
		ApplicationID:    applicationID,
		BlockedFields:    blocked,
		GeolocationValid: s.geolocationValid(ctx, applicationID),
	}
	if finalized {
		check.Reasons = append(check.Reasons, domain.ReasonCode(domain.ErrFinalized))
	}
	if blocked > 0 {
		check.Reasons = append(check.Reasons, domain.ReasonCode(domain.ErrBlockedFields))
	}
	if !check.GeolocationValid {
		check.Reasons = append(check.Reasons, domain.ReasonCode(domain.ErrGeolocationInvalid))
	}
	check.Allowed = len(check.Reasons) == 0
	return check, nil
}

// Finalize closes the investigation. The rejection names every failed
// condition. On success the store is flushed immediately.
func (s *Service) Finalize(ctx context.Context, applicationID string) (summary *domain.Summary, err error) {
	ctx, span := s.startSpan(ctx, OpFinalize, applicationID)
	defer func() { s.finish(ctx, span, OpFinalize, FieldRef{ApplicationID: applicationID}, err) }()

	geoValid := s.geolocationValid(ctx, applicationID)

	err = s.store.Update(applicationID, func(inv *domain.Investigation) error {
		if inv.IsFinalized() {
			return domain.Reject(OpFinalize, domain.ErrFinalized, "investigation %s is already finalized", applicationID)
		}

		rej := &domain.Rejection{Op: OpFinalize}
		if inv.Summary.BlockedFields > 0 {
			rej.Reasons = append(rej.Reasons, domain.ErrBlockedFields)
		}
		if !geoValid {
			rej.Reasons = append(rej.Reasons, domain.ErrGeolocationInvalid)
		}
		if len(rej.Reasons) > 0 {
			return rej
		}

		completedAt := s.now()
		inv.Metadata.CompletedAt = &completedAt
		recompute(inv)
		out := inv.Summary.Clone()
		summary = &out
		return nil
	})
	if err != nil {
		return nil, s.notFound(OpFinalize, applicationID, err)
	}

	s.flushNow(ctx, OpFinalize)
	metrics.ObserveFinalization(string(summary.RecommendedAction))
	s.log.InvestigationFinalized(applicationID, string(summary.OverallRisk), string(summary.RecommendedAction))
	s.publish(ctx, events.New(events.TypeInvestigationFinalized, applicationID, summary))
	return summary, nil
}

// GetInvestigation returns a copy of the investigation
func (s *Service) GetInvestigation(_ context.Context, applicationID string) (*domain.Investigation, error) {
	inv, ok := s.store.Get(applicationID)
	if !ok {
		return nil, domain.Reject("get_investigation", domain.ErrNotFound, "investigation %s not found", applicationID)
	}
	return inv, nil
}

// GetSummary returns the application level summary
func (s *Service) GetSummary(_ context.Context, applicationID string) (*domain.Summary, error) {
	var out domain.Summary
	if err := s.store.View(applicationID, func(inv *domain.Investigation) {
		out = inv.Summary.Clone()
	}); err != nil {
		return nil, domain.Reject("get_summary", err, "investigation %s not found", applicationID)
	}
	return &out, nil
}

// GetSectionProgress returns the progress of one section
func (s *Service) GetSectionProgress(_ context.Context, applicationID, sectionID string) (*domain.SectionProgress, error) {
	var out *domain.SectionProgress
	if err := s.store.View(applicationID, func(inv *domain.Investigation) {
		if section, ok := inv.Section(sectionID); ok {
			out = section.ToProgress()
		}
	}); err != nil {
		return nil, domain.Reject("get_section_progress", err, "investigation %s not found", applicationID)
	}
	if out == nil {
		return nil, domain.Reject("get_section_progress", domain.ErrNotFound, "section %s not found", sectionID)
	}
	return out, nil
}

// GetDiffs returns the detected differences keyed by field id
func (s *Service) GetDiffs(_ context.Context, applicationID string) (map[string]domain.DetectedDifference, error) {
	var out map[string]domain.DetectedDifference
	if err := s.store.View(applicationID, func(inv *domain.Investigation) {
		out = make(map[string]domain.DetectedDifference, len(inv.Diffs))
		for id, d := range inv.Diffs {
			out[id] = d.Clone()
		}
	}); err != nil {
		return nil, domain.Reject("get_diffs", err, "investigation %s not found", applicationID)
	}
	return out, nil
}

// ListInvestigations returns lean summaries ordered by application id
func (s *Service) ListInvestigations(_ context.Context) []*domain.InvestigationSummary {
	ids := s.store.IDs()
	out := make([]*domain.InvestigationSummary, 0, len(ids))
	for _, id := range ids {
		_ = s.store.View(id, func(inv *domain.Investigation) {
			out = append(out, inv.ToSummary())
		})
	}
	return out
}

// mutate locates the field and applies fn under the investigation's lock.
// Aggregates are recomputed before the lock is released.
func (s *Service) mutate(op string, ref FieldRef, fn func(inv *domain.Investigation, f *domain.FieldRecord) error) error {
	err := s.store.Update(ref.ApplicationID, func(inv *domain.Investigation) error {
		if inv.IsFinalized() {
			return domain.Reject(op, domain.ErrFinalized, "investigation %s is finalized", ref.ApplicationID)
		}
		section, ok := inv.Section(ref.SectionID)
		if !ok {
			return domain.Reject(op, domain.ErrNotFound, "section %s not found", ref.SectionID)
		}
		f, ok := section.Field(ref.FieldID)
		if !ok {
			return domain.Reject(op, domain.ErrNotFound, "field %s not found in section %s", ref.FieldID, ref.SectionID)
		}
		if err := fn(inv, f); err != nil {
			return err
		}
		recompute(inv)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return s.notFound(op, ref.ApplicationID, err)
}

// notFound wraps the store's bare not-found sentinel in a rejection
func (s *Service) notFound(op, applicationID string, err error) error {
	var rej *domain.Rejection
	if err == nil || errors.As(err, &rej) {
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Reject(op, domain.ErrNotFound, "investigation %s not found", applicationID)
	}
	return err
}

func (s *Service) recordDifference(inv *domain.Investigation, f *domain.FieldRecord, auto bool, now time.Time) domain.DetectedDifference {
	difference, severity, _ := threshold.Evaluate(f, ruleFor(inv, f.ID), s.defaultThreshold)
	d := domain.DetectedDifference{
		Field:         f.ID,
		Type:          f.Type,
		DeclaredValue: f.DeclaredValue,
		ObservedValue: f.ObservedValue,
		Difference:    difference,
		Severity:      severity,
		AutoDetected:  auto,
		DetectedAt:    now,
	}
	inv.Diffs[f.ID] = d

	metrics.ObserveDifference(string(severity), auto)
	s.log.WithInvestigation(inv.ApplicationID).DifferenceDetected(f.ID, string(severity), difference, auto)
	return d.Clone()
}

func (s *Service) geolocationValid(ctx context.Context, applicationID string) bool {
	if s.geo == nil {
		return false
	}
	valid, err := s.geo.IsValid(ctx, applicationID)
	if err != nil {
		s.log.WithInvestigation(applicationID).Warn("geolocation check failed", logger.ErrorField(err))
		return false
	}
	return valid
}

// flushNow persists terminal decisions. A failed write stays scheduled for
// retry; the in-memory state remains authoritative.
func (s *Service) flushNow(ctx context.Context, op string) {
	if err := s.store.FlushNow(ctx); err != nil {
		s.log.Warn("forced flush failed", logger.StringField("operation", op), logger.ErrorField(err))
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed",
			logger.StringField("event_type", string(event.Type)),
			logger.StringField("application_id", event.ApplicationID),
			logger.ErrorField(err),
		)
	}
}

func (s *Service) fieldLog(ref FieldRef) *logger.Logger {
	return s.log.WithSection(ref.ApplicationID, ref.SectionID)
}

func (s *Service) startSpan(ctx context.Context, op, applicationID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "reconciliation."+op,
		trace.WithAttributes(attribute.String("application.id", applicationID)),
	)
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, ref FieldRef, err error) {
	defer span.End()

	metrics.ObserveOperation(op, err == nil)
	if err == nil {
		return
	}

	var rej *domain.Rejection
	if errors.As(err, &rej) {
		span.SetAttributes(attribute.StringSlice("rejection.reasons", rej.Codes()))
		s.log.WithContext(ctx).WithInvestigation(ref.ApplicationID).TransitionRejected(op, ref.FieldID, err)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.WithContext(ctx).Error("operation failed", logger.StringField("operation", op), logger.ErrorField(err))
}

// coerce converts an incoming payload to the field's value kind
func coerce(f *domain.FieldRecord, raw interface{}) (domain.Value, error) {
	if v, ok := raw.(domain.Value); ok {
		if v.Set && v.Kind != f.Type {
			return domain.Value{}, domain.ErrInvalidValue
		}
		v.Kind = f.Type
		return v, nil
	}
	return domain.ParseValue(f.Type, raw)
}

func ruleFor(inv *domain.Investigation, fieldID string) *domain.ThresholdRule {
	if rule, ok := inv.Thresholds[fieldID]; ok {
		return &rule
	}
	return nil
}

func stampEvidence(in []domain.Evidence, now time.Time) []domain.Evidence {
	out := make([]domain.Evidence, 0, len(in))
	for _, e := range in {
		if e.Reference == "" {
			continue
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = now
		}
		out = append(out, e)
	}
	return out
}
