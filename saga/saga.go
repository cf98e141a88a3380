// Package saga runs a report submission as an explicit state machine:
// locate, upload evidence, verify, persist, credit, and compensate when a
// step fails after evidence already exists.
package saga

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"civicpulse/evidence"
	"civicpulse/location"
	"civicpulse/logging"
	"civicpulse/models"
	"civicpulse/oracle"
	"civicpulse/reports"
	"civicpulse/rewards"
)

type Locator interface {
	Acquire(ctx context.Context, src location.PositionSource) (models.Location, error)
}

type Verifier interface {
	Verify(ctx context.Context, imageURL, label string) (oracle.Verdict, error)
}

// Deps are the collaborators a saga drives.
type Deps struct {
	Locator  Locator
	Evidence evidence.Store
	Verifier Verifier
	Reports  reports.Repository
	Ledger   rewards.Ledger
}

type Options struct {
	Policy          Policy
	OracleAttempts  int
	PersistAttempts int
	CreditAttempts  int
	// NewBackOff builds the wait schedule between attempts. Defaults to
	// exponential backoff starting at 200ms.
	NewBackOff func() backoff.BackOff
}

type Saga struct {
	deps   Deps
	opts   Options
	steps  map[State]step
	log    *slog.Logger
	tracer trace.Tracer
}

// step runs the work for one state and returns the next state.
type step func(ctx context.Context, r *run) State

func New(deps Deps, opts Options) *Saga {
	if opts.Policy.Verified == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	opts.OracleAttempts = max(opts.OracleAttempts, 1)
	opts.PersistAttempts = max(opts.PersistAttempts, 1)
	opts.CreditAttempts = max(opts.CreditAttempts, 1)

	s := &Saga{
		deps:   deps,
		opts:   opts,
		log:    logging.New("saga"),
		tracer: otel.Tracer("civicpulse/saga"),
	}
	s.steps = map[State]step{
		Drafting:         s.locate,
		LocationAcquired: s.upload,
		EvidenceUploaded: s.route,
		Verifying:        s.verify,
		Verified:         s.persist,
		Persisted:        s.credit,
		Compensating:     s.compensate,
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// Policy returns the verification policy in force.
func (s *Saga) Policy() Policy { return s.opts.Policy }

// Submission is one user's intent to report an issue.
type Submission struct {
	OwnerID     string
	Photo       []byte
	Ext         string
	IssueType   models.IssueType
	Urgency     models.Urgency
	Description string
	Position    location.PositionSource
}

// Outcome describes how far a run got and what it produced.
type Outcome struct {
	State         State
	Trail         []State
	Location      models.Location
	EvidenceKey   evidence.Ref
	EvidenceURL   string
	Verdict       *oracle.Verdict
	Report        models.Report
	Account       models.RewardAccount
	CreditApplied bool
}

type run struct {
	sub        Submission
	out        Outcome
	err        error
	halted     bool
	compensate bool
}

func (r *run) enter(next State) {
	r.out.State = next
	r.out.Trail = append(r.out.Trail, next)
}

// halt stops the run in the current state with err.
func (r *run) halt(err error) State {
	r.err = err
	r.halted = true
	return r.out.State
}

// fail routes the run through compensation. Evidence is deleted only when
// deleteEvidence is set.
func (r *run) fail(err error, deleteEvidence bool) State {
	r.err = err
	r.compensate = deleteEvidence
	return Compensating
}

// Submit drives one submission to Credited or to an error. On error the
// Outcome still reports the state reached; errors.As against the error types
// in this package tells callers what happened.
func (s *Saga) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "saga.submit", trace.WithAttributes(
		attribute.String("owner_id", sub.OwnerID),
		attribute.String("issue_type", string(sub.IssueType)),
	))
	defer span.End()

	r := &run{sub: sub}
	r.enter(Drafting)

	if err := checkSubmission(sub); err != nil {
		r.halt(err)
		return s.finish(span, r)
	}

	detached := false
	for !r.out.State.Terminal() && !r.halted {
		// Before evidence exists the caller may walk away. From the upload
		// on, every step has side effects and runs to completion.
		if r.out.State == LocationAcquired && !detached {
			if err := ctx.Err(); err != nil {
				r.err = err
				r.enter(Aborted)
				break
			}
			ctx = context.WithoutCancel(ctx)
			detached = true
		}

		from, prior := r.out.State, r.err
		sctx, sspan := s.tracer.Start(ctx, "saga."+from.String())
		next := s.steps[from](sctx, r)
		if r.err != nil && r.err != prior {
			sspan.RecordError(r.err)
			sspan.SetStatus(codes.Error, r.err.Error())
		}
		sspan.End()

		if !r.halted {
			r.enter(next)
		}
	}
	return s.finish(span, r)
}

func (s *Saga) finish(span trace.Span, r *run) (Outcome, error) {
	span.SetAttributes(attribute.String("state", r.out.State.String()))
	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
	}
	return r.out, r.err
}

func checkSubmission(sub Submission) error {
	switch {
	case sub.OwnerID == "":
		return &PreconditionError{Field: "owner"}
	case len(sub.Photo) == 0:
		return &PreconditionError{Field: "photo"}
	case !sub.IssueType.Valid():
		return &PreconditionError{Field: "issue_type", Err: errors.New("unknown issue type " + string(sub.IssueType))}
	case !sub.Urgency.Valid():
		return &PreconditionError{Field: "urgency", Err: errors.New("unknown urgency " + string(sub.Urgency))}
	case sub.Position == nil:
		return &PreconditionError{Field: "location"}
	}
	return nil
}

func (s *Saga) locate(ctx context.Context, r *run) State {
	loc, err := s.deps.Locator.Acquire(ctx, r.sub.Position)
	if err != nil {
		return r.halt(&PreconditionError{Field: "location", Err: err})
	}
	r.out.Location = loc
	return LocationAcquired
}

func (s *Saga) upload(ctx context.Context, r *run) State {
	ref, err := s.deps.Evidence.Upload(ctx, r.sub.OwnerID, r.sub.Photo, r.sub.Ext)
	if err != nil {
		r.err = &StorageError{Err: err}
		return Aborted
	}
	r.out.EvidenceKey = ref
	r.out.EvidenceURL = s.deps.Evidence.PublicURL(ref)
	return EvidenceUploaded
}

// route sends gated issue types to the detector; the rest go straight to
// persistence.
func (s *Saga) route(ctx context.Context, r *run) State {
	if _, ok := s.opts.Policy.Requires(r.sub.IssueType); ok {
		return Verifying
	}
	return s.persist(ctx, r)
}

func (s *Saga) verify(ctx context.Context, r *run) State {
	label, _ := s.opts.Policy.Requires(r.sub.IssueType)
	log := s.log.With("owner_id", r.sub.OwnerID, "evidence_key", string(r.out.EvidenceKey))

	verdict, attempts, err := retry(ctx, s.opts.OracleAttempts, s.opts.NewBackOff,
		func() (oracle.Verdict, error) {
			return s.deps.Verifier.Verify(ctx, r.out.EvidenceURL, label)
		},
		func(attempt int, err error, wait time.Duration) {
			log.Warn("verification attempt failed", "attempt", attempt, "retry_in", wait, "error", err)
		})
	if err != nil {
		return r.fail(&OracleError{Attempts: attempts, Err: err}, true)
	}

	r.out.Verdict = &verdict
	if !verdict.Accepted {
		log.Info("verification rejected", "label", label, "confidence", verdict.Confidence)
		return r.fail(&RejectedError{IssueType: r.sub.IssueType, Label: label, Confidence: verdict.Confidence}, true)
	}
	return Verified
}

func (s *Saga) persist(ctx context.Context, r *run) State {
	in := models.NewReport{
		OwnerID:     r.sub.OwnerID,
		EvidenceKey: string(r.out.EvidenceKey),
		EvidenceURL: r.out.EvidenceURL,
		Location:    r.out.Location,
		IssueType:   r.sub.IssueType,
		Urgency:     r.sub.Urgency,
		Description: r.sub.Description,
	}
	log := s.log.With("owner_id", r.sub.OwnerID, "evidence_key", string(r.out.EvidenceKey))

	report, attempts, err := retry(ctx, s.opts.PersistAttempts, s.opts.NewBackOff,
		func() (models.Report, error) { return s.deps.Reports.Create(ctx, in) },
		func(attempt int, err error, wait time.Duration) {
			log.Warn("persist attempt failed", "attempt", attempt, "retry_in", wait, "error", err)
		})
	if err != nil {
		log.Error("report not recorded, evidence retained", "attempts", attempts, "error", err)
		return r.fail(&PersistenceError{Attempts: attempts, EvidenceKey: r.out.EvidenceKey, Err: err}, false)
	}
	r.out.Report = report
	return Persisted
}

func (s *Saga) credit(ctx context.Context, r *run) State {
	acct, applied, err := s.applyCredit(ctx, rewards.SubmissionEntry(r.sub.OwnerID, r.out.Report.ID))
	if err != nil {
		s.log.Error("credit pending", "owner_id", r.sub.OwnerID, "report_id", r.out.Report.ID, "error", err)
		return r.halt(&LedgerError{ReportID: r.out.Report.ID, Err: err})
	}
	r.out.Account = acct
	r.out.CreditApplied = applied
	return Credited
}

func (s *Saga) applyCredit(ctx context.Context, e rewards.Entry) (models.RewardAccount, bool, error) {
	type result struct {
		acct    models.RewardAccount
		applied bool
	}
	res, _, err := retry(ctx, s.opts.CreditAttempts, s.opts.NewBackOff,
		func() (result, error) {
			acct, applied, err := s.deps.Ledger.Credit(ctx, e)
			if errors.Is(err, rewards.ErrInvalidCredit) || errors.Is(err, rewards.ErrEmptyKey) {
				return result{}, backoff.Permanent(err)
			}
			return result{acct, applied}, err
		},
		func(attempt int, err error, wait time.Duration) {
			s.log.Warn("credit attempt failed", "owner_id", e.OwnerID, "key", e.Key, "attempt", attempt, "error", err)
		})
	return res.acct, res.applied, err
}

func (s *Saga) compensate(ctx context.Context, r *run) State {
	if !r.compensate || r.out.EvidenceKey == "" {
		return Aborted
	}
	if err := s.deps.Evidence.Delete(ctx, r.out.EvidenceKey); err != nil {
		s.log.Warn("evidence cleanup failed", "owner_id", r.sub.OwnerID,
			"evidence_key", string(r.out.EvidenceKey), "error", err)
	}
	return Aborted
}

// retry runs op up to attempts times and reports how many calls were made.
func retry[T any](ctx context.Context, attempts int, newBackOff func() backoff.BackOff,
	op func() (T, error), notify func(attempt int, err error, wait time.Duration)) (T, int, error) {
	calls := 0
	res, err := backoff.Retry(ctx,
		func() (T, error) {
			calls++
			return op()
		},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) { notify(calls, err, wait) }),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return res, calls, err
}
