package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/evidence"
	"civicpulse/location"
	"civicpulse/models"
	"civicpulse/oracle"
	"civicpulse/reports"
	"civicpulse/rewards"
)

// store wraps a FileStore so tests can inject failures and count calls.
type store struct {
	*evidence.FileStore
	mu        sync.Mutex
	uploadErr error
	deleteErr error
	deletes   []evidence.Ref
	uploads   int
}

func (s *store) Upload(ctx context.Context, owner string, data []byte, ext string) (evidence.Ref, error) {
	s.mu.Lock()
	s.uploads++
	err := s.uploadErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.FileStore.Upload(ctx, owner, data, ext)
}

func (s *store) Delete(ctx context.Context, ref evidence.Ref) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, ref)
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.FileStore.Delete(ctx, ref)
}

type verifier struct {
	mu      sync.Mutex
	calls   int
	results []func() (oracle.Verdict, error)
}

func (v *verifier) Verify(ctx context.Context, url, label string) (oracle.Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.results) == 0 {
		return oracle.Verdict{}, errors.New("no scripted verdict")
	}
	next := v.results[0]
	if len(v.results) > 1 {
		v.results = v.results[1:]
	}
	return next()
}

func detected(conf float64) func() (oracle.Verdict, error) {
	return func() (oracle.Verdict, error) {
		return oracle.Verdict{Accepted: true, Confidence: conf, Label: "pothole"}, nil
	}
}

func notDetected() (oracle.Verdict, error) {
	return oracle.Verdict{Accepted: false, Label: "pothole"}, nil
}

func timedOut() (oracle.Verdict, error) {
	return oracle.Verdict{}, &oracle.Error{Err: context.DeadlineExceeded}
}

type flakyRepo struct {
	reports.Repository
	mu       sync.Mutex
	failures int
	creates  int
}

func (f *flakyRepo) Create(ctx context.Context, in models.NewReport) (models.Report, error) {
	f.mu.Lock()
	f.creates++
	fail := f.creates <= f.failures
	f.mu.Unlock()
	if fail {
		return models.Report{}, errors.New("connection reset")
	}
	return f.Repository.Create(ctx, in)
}

type flakyLedger struct {
	rewards.Ledger
	mu       sync.Mutex
	failures int
	credits  int
}

func (f *flakyLedger) Credit(ctx context.Context, e rewards.Entry) (models.RewardAccount, bool, error) {
	f.mu.Lock()
	f.credits++
	fail := f.credits <= f.failures
	f.mu.Unlock()
	if fail {
		return models.RewardAccount{}, false, errors.New("ledger unavailable")
	}
	return f.Ledger.Credit(ctx, e)
}

type harness struct {
	saga     *Saga
	store    *store
	verifier *verifier
	repo     *flakyRepo
	ledger   *flakyLedger
}

func newHarness(t *testing.T, verdicts ...func() (oracle.Verdict, error)) *harness {
	t.Helper()
	fs, err := evidence.NewFileStore(t.TempDir(), "http://cdn.test/uploads")
	require.NoError(t, err)

	h := &harness{
		store:    &store{FileStore: fs},
		verifier: &verifier{results: verdicts},
		repo:     &flakyRepo{Repository: reports.NewMemoryRepository()},
		ledger:   &flakyLedger{Ledger: rewards.NewMemoryLedger()},
	}
	h.saga = New(Deps{
		Locator:  location.NewProvider(nil, location.DefaultOptions, time.Second),
		Evidence: h.store,
		Verifier: h.verifier,
		Reports:  h.repo,
		Ledger:   h.ledger,
	}, Options{
		OracleAttempts:  3,
		PersistAttempts: 3,
		CreditAttempts:  2,
		NewBackOff:      func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	})
	return h
}

func fix(lat, lng float64) location.ReportedFix {
	return location.ReportedFix{Latitude: &lat, Longitude: &lng, AccuracyM: 8, FixAt: time.Now()}
}

func submission(it models.IssueType) Submission {
	return Submission{
		OwnerID:     "citizen-1",
		Photo:       []byte("\xff\xd8\xff jpeg bytes"),
		Ext:         "jpg",
		IssueType:   it,
		Urgency:     models.UrgencyHigh,
		Description: "deep hole by the bus stop",
		Position:    fix(-15.4167, 28.2833),
	}
}

func (h *harness) reportCount(t *testing.T) int {
	items, _, err := h.repo.List(context.Background(), reports.Query{Limit: reports.MaxLimit})
	require.NoError(t, err)
	return len(items)
}

func (h *harness) account(t *testing.T) models.RewardAccount {
	acct, err := h.ledger.Account(context.Background(), "citizen-1")
	require.NoError(t, err)
	return acct
}

func TestSubmit_VerifiedPothole(t *testing.T) {
	h := newHarness(t, detected(0.9))

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	require.NoError(t, err)

	want := []State{Drafting, LocationAcquired, EvidenceUploaded, Verifying, Verified, Persisted, Credited}
	if diff := cmp.Diff(want, out.Trail); diff != "" {
		t.Fatalf("trail mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Credited, out.State)
	assert.Equal(t, models.StatusPending, out.Report.Status)
	assert.Equal(t, string(out.EvidenceKey), out.Report.EvidenceKey)
	assert.Equal(t, "http://cdn.test/uploads/"+string(out.EvidenceKey), out.Report.EvidenceURL)
	require.NotNil(t, out.Verdict)
	assert.InDelta(t, 0.9, out.Verdict.Confidence, 1e-9)
	assert.True(t, out.CreditApplied)
	assert.Equal(t, int64(10), out.Account.Credits)
	assert.Equal(t, int64(1), out.Account.TotalReports)

	exists, err := h.store.Exists(context.Background(), out.EvidenceKey)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, h.verifier.calls)
}

func TestSubmit_RejectedPotholeCleansUp(t *testing.T) {
	h := newHarness(t, notDetected)

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "no pothole detected", err.Error())

	assert.Equal(t, Aborted, out.State)
	assert.Equal(t, []State{Drafting, LocationAcquired, EvidenceUploaded, Verifying, Compensating, Aborted}, out.Trail)
	assert.Equal(t, []evidence.Ref{out.EvidenceKey}, h.store.deletes)

	exists, err := h.store.Exists(context.Background(), out.EvidenceKey)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, h.reportCount(t))
	assert.Zero(t, h.account(t).Credits)
	assert.Equal(t, 1, h.verifier.calls, "a rejection is a decision and is not retried")
}

func TestSubmit_OracleTimeoutsExhaustRetries(t *testing.T) {
	h := newHarness(t, timedOut)

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	var oerr *OracleError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, 3, oerr.Attempts)
	assert.Equal(t, 3, h.verifier.calls)

	var transport *oracle.Error
	assert.ErrorAs(t, err, &transport)
	assert.True(t, transport.Timeout())

	assert.Equal(t, Aborted, out.State)
	exists, _ := h.store.Exists(context.Background(), out.EvidenceKey)
	assert.False(t, exists)
	assert.Zero(t, h.reportCount(t))
	assert.Zero(t, h.account(t).Credits)
}

func TestSubmit_OracleRecoversWithinBudget(t *testing.T) {
	h := newHarness(t, timedOut, detected(0.7))

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	require.NoError(t, err)
	assert.Equal(t, Credited, out.State)
	assert.Equal(t, 2, h.verifier.calls)
}

func TestSubmit_UnverifiedTypeSkipsOracle(t *testing.T) {
	// The scripted verdict would reject; it must never be consulted.
	h := newHarness(t, notDetected)

	out, err := h.saga.Submit(context.Background(), submission(models.IssueGarbage))
	require.NoError(t, err)

	assert.Equal(t, []State{Drafting, LocationAcquired, EvidenceUploaded, Persisted, Credited}, out.Trail)
	assert.Nil(t, out.Verdict)
	assert.Zero(t, h.verifier.calls)
	assert.Equal(t, models.StatusPending, out.Report.Status)
	assert.Equal(t, int64(10), h.account(t).Credits)
}

func TestSubmit_PreconditionsNeverStart(t *testing.T) {
	cases := map[string]func(*Submission){
		"photo":      func(s *Submission) { s.Photo = nil },
		"owner":      func(s *Submission) { s.OwnerID = "" },
		"issue_type": func(s *Submission) { s.IssueType = "volcano" },
		"urgency":    func(s *Submission) { s.Urgency = "" },
		"location":   func(s *Submission) { s.Position = nil },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			h := newHarness(t, detected(0.9))
			sub := submission(models.IssuePothole)
			mutate(&sub)

			out, err := h.saga.Submit(context.Background(), sub)
			var pre *PreconditionError
			require.ErrorAs(t, err, &pre)
			assert.Equal(t, field, pre.Field)
			assert.Equal(t, Drafting, out.State)
			assert.Zero(t, h.store.uploads)
		})
	}
}

func TestSubmit_LocationFailureKinds(t *testing.T) {
	for code, want := range map[int]error{
		1: location.ErrPermissionDenied,
		2: location.ErrPositionUnavailable,
		3: location.ErrTimeout,
	} {
		h := newHarness(t)
		sub := submission(models.IssuePothole)
		sub.Position = location.ReportedFix{ErrorCode: code}

		out, err := h.saga.Submit(context.Background(), sub)
		var pre *PreconditionError
		require.ErrorAs(t, err, &pre)
		assert.Equal(t, "location", pre.Field)
		assert.ErrorIs(t, err, want)
		assert.Equal(t, []State{Drafting}, out.Trail)
		assert.Zero(t, h.store.uploads)
	}
}

func TestSubmit_UploadFailureAbortsWithoutCompensation(t *testing.T) {
	h := newHarness(t, detected(0.9))
	h.store.uploadErr = errors.New("bucket unreachable")

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []State{Drafting, LocationAcquired, Aborted}, out.Trail)
	assert.Empty(t, h.store.deletes)
	assert.Zero(t, h.verifier.calls)
}

func TestSubmit_CleanupFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, notDetected)
	h.store.deleteErr = errors.New("permission denied")

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected, "the user-facing outcome stays a rejection")
	assert.Equal(t, Aborted, out.State)
	assert.Len(t, h.store.deletes, 1)
}

func TestSubmit_PersistRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t, detected(0.9))
	h.repo.failures = 2

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	require.NoError(t, err)
	assert.Equal(t, 3, h.repo.creates)
	assert.Equal(t, Credited, out.State)
}

func TestSubmit_PersistExhaustionKeepsEvidence(t *testing.T) {
	h := newHarness(t, detected(0.9))
	h.repo.failures = 10

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Attempts)
	assert.Equal(t, out.EvidenceKey, perr.EvidenceKey)
	assert.Equal(t, Aborted, out.State)

	assert.Empty(t, h.store.deletes)
	exists, _ := h.store.Exists(context.Background(), out.EvidenceKey)
	assert.True(t, exists)
	assert.Zero(t, h.account(t).Credits)
}

func TestSubmit_LedgerFailureKeepsReport(t *testing.T) {
	h := newHarness(t, detected(0.9))
	h.ledger.failures = 10

	out, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
	var lerr *LedgerError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, out.Report.ID, lerr.ReportID)
	assert.Equal(t, Persisted, out.State)
	assert.Equal(t, 2, h.ledger.credits)

	_, err = h.repo.Get(context.Background(), out.Report.ID)
	assert.NoError(t, err)
	assert.Empty(t, h.store.deletes)
}

func TestSubmit_CancelledBeforeUploadAbandons(t *testing.T) {
	h := newHarness(t, detected(0.9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := submission(models.IssuePothole)
	sub.Position = cancelAfterFix{fix: fix(1, 2)}
	out, err := h.saga.Submit(ctx, sub)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []State{Drafting, LocationAcquired, Aborted}, out.Trail)
	assert.Zero(t, h.store.uploads)
}

// cancelAfterFix ignores cancellation so the run reaches the upload boundary
// with a context that is already done.
type cancelAfterFix struct{ fix location.ReportedFix }

func (c cancelAfterFix) CurrentPosition(ctx context.Context, o location.PositionOptions) (location.Position, error) {
	return c.fix.CurrentPosition(context.WithoutCancel(ctx), o)
}

func TestSubmit_CancelledAfterUploadRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, func() (oracle.Verdict, error) {
		cancel()
		return oracle.Verdict{Accepted: true, Confidence: 0.8}, nil
	})

	out, err := h.saga.Submit(ctx, submission(models.IssuePothole))
	require.NoError(t, err)
	assert.Equal(t, Credited, out.State)
	assert.Equal(t, int64(10), h.account(t).Credits)
}

func TestSubmit_ConcurrentSubmissionsSameOwner(t *testing.T) {
	h := newHarness(t, detected(0.9))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.saga.Submit(context.Background(), submission(models.IssuePothole))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acct := h.account(t)
	assert.Equal(t, int64(200), acct.Credits)
	assert.Equal(t, int64(20), acct.TotalReports)
	assert.Equal(t, []string{"silver", "gold"}, acct.Medals)
	assert.Equal(t, 20, h.reportCount(t))
}

func TestUpdateStatus_ResolutionCreditsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, err := h.saga.Submit(ctx, submission(models.IssueGarbage))
	require.NoError(t, err)

	res, err := h.saga.UpdateStatus(ctx, out.Report.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Nil(t, res.Account)

	res, err = h.saga.UpdateStatus(ctx, out.Report.ID, models.StatusResolved)
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	assert.True(t, res.CreditApplied)
	assert.Equal(t, int64(20), res.Account.Credits)
	assert.Equal(t, int64(1), res.Account.ResolvedReports)

	_, err = h.saga.UpdateStatus(ctx, out.Report.ID, models.StatusResolved)
	assert.ErrorIs(t, err, reports.ErrStatusConflict)
	assert.Equal(t, int64(20), h.account(t).Credits)

	_, err = h.saga.UpdateStatus(ctx, out.Report.ID, "closed")
	var pre *PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestUpdateStatus_LedgerFailureKeepsResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, err := h.saga.Submit(ctx, submission(models.IssueGarbage))
	require.NoError(t, err)

	h.ledger.failures = h.ledger.credits + 10
	res, err := h.saga.UpdateStatus(ctx, out.Report.ID, models.StatusResolved)
	var lerr *LedgerError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, models.StatusResolved, res.Report.Status)
}
