package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/analysis"
	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
)

type mockAnalyzer struct{ mock.Mock }

func (m *mockAnalyzer) Analyze(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.AnalysisResult), args.Error(1)
}

type analyzerFunc func(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error) {
	return f(ctx, in)
}

var billingResult = domain.AnalysisResult{
	Category:       domain.CategoryBilling,
	SentimentScore: 2,
	Urgency:        domain.UrgencyHigh,
	DraftResponse:  "We sincerely apologize for the duplicate charge on your account.",
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Embedded:      true,
		Concurrency:   2,
		MaxAttempts:   3,
		RetryDelay:    10 * time.Second,
		HardDeadline:  200 * time.Millisecond,
		SoftDeadline:  100 * time.Millisecond,
		LeaseTimeout:  time.Minute,
		PollInterval:  5 * time.Millisecond,
		SweepInterval: time.Minute,
		StaleAfter:    time.Minute,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) statuses() []domain.TicketStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TicketStatus, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Status)
	}
	return out
}

type fixture struct {
	repo      *repository.MemoryTicketRepository
	recorder  *recorder
	processor *Processor
}

func newFixture(t *testing.T, analyzer Analyzer) *fixture {
	t.Helper()
	repo := repository.NewMemoryTicketRepository()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	rec := &recorder{}
	dispatcher.Subscribe(events.EventTicketUpdate, rec.handle)
	return &fixture{
		repo:      repo,
		recorder:  rec,
		processor: NewProcessor(repo, analyzer, dispatcher, observability.NewMetrics(), testWorkerConfig(), zap.NewNop()),
	}
}

func (f *fixture) createTicket(t *testing.T) (*domain.Ticket, *queue.Task) {
	t.Helper()
	ticket, err := f.repo.Create(context.Background(), domain.NewTicket{
		Title:         "Charged twice",
		Description:   "I was billed twice for my subscription this month.",
		CustomerEmail: "ada@example.com",
	})
	require.NoError(t, err)
	return ticket, &queue.Task{TicketID: ticket.ID, Attempt: 1, Receipt: "r"}
}

func TestHandleSuccessMarksReady(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(in analysis.Input) bool {
		return in.Title == "Charged twice"
	})).Return(billingResult, nil).Once()

	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)

	decision := f.processor.Handle(context.Background(), task)
	assert.Equal(t, DecisionAck, decision.Kind)

	stored, err := f.repo.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReady, stored.Status)
	assert.Equal(t, domain.CategoryBilling, *stored.Category)
	assert.Equal(t, 2, *stored.SentimentScore)
	assert.Equal(t, domain.UrgencyHigh, *stored.Urgency)
	assert.Equal(t, billingResult.DraftResponse, *stored.DraftResponse)
	assert.Nil(t, stored.ErrorMessage)
	assert.Equal(t, 1, stored.ProcessingAttempts)
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusProcessing, domain.TicketStatusReady}, f.recorder.statuses())
	analyzer.AssertExpectations(t)
}

func TestHandleRetriesThenFails(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(domain.AnalysisResult{}, &analysis.ProviderError{Timeout: true}).Times(3)

	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)
	ctx := context.Background()

	for attempt := 1; attempt <= 2; attempt++ {
		decision := f.processor.Handle(ctx, task)
		require.Equal(t, DecisionRetry, decision.Kind)
		assert.True(t, decision.NextAttempt)
		assert.Equal(t, 10*time.Second, decision.Delay)

		stored, err := f.repo.Get(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusPending, stored.Status)
		assert.Equal(t, attempt, stored.ProcessingAttempts)
		assert.Contains(t, *stored.ErrorMessage, "Retry")
	}

	decision := f.processor.Handle(ctx, task)
	assert.Equal(t, DecisionDeadLetter, decision.Kind)

	stored, err := f.repo.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.ProcessingAttempts)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "Failed after 3 attempts: analysis provider timed out", *stored.ErrorMessage)

	// A late duplicate delivery leaves the terminal ticket alone.
	assert.Equal(t, DecisionAck, f.processor.Handle(ctx, task).Kind)
	analyzer.AssertExpectations(t)
}

func TestHandleOutOfRangeSentimentIsRetried(t *testing.T) {
	bad := billingResult
	bad.SentimentScore = 11
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything).Return(bad, nil).Once()

	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)

	decision := f.processor.Handle(context.Background(), task)
	assert.Equal(t, DecisionRetry, decision.Kind)

	stored, err := f.repo.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, stored.Status)
	assert.Nil(t, stored.SentimentScore)
	assert.Contains(t, *stored.ErrorMessage, "sentiment_score")
}

func TestHandleHardDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	analyzer := analyzerFunc(func(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error) {
		<-release
		return billingResult, nil
	})

	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)

	start := time.Now()
	decision := f.processor.Handle(context.Background(), task)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, DecisionRetry, decision.Kind)

	stored, err := f.repo.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Retry 1/3: analysis provider timed out", *stored.ErrorMessage)
}

func TestHandleMissingTicket(t *testing.T) {
	analyzer := &mockAnalyzer{}
	f := newFixture(t, analyzer)

	decision := f.processor.Handle(context.Background(), &queue.Task{TicketID: "gone", Attempt: 1})
	assert.Equal(t, DecisionAck, decision.Kind)
	analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestHandleNonPendingIsDuplicate(t *testing.T) {
	analyzer := &mockAnalyzer{}
	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)

	_, err := f.repo.Transition(context.Background(), ticket.ID, domain.TicketStatusPending, domain.TicketStatusProcessing,
		domain.TransitionUpdate{IncrementAttempts: true})
	require.NoError(t, err)
	before, _ := f.repo.Get(context.Background(), ticket.ID)

	assert.Equal(t, DecisionAck, f.processor.Handle(context.Background(), task).Kind)

	after, _ := f.repo.Get(context.Background(), ticket.ID)
	assert.Equal(t, before, after)
	analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestHandleFailsPendingTicketPastBudget(t *testing.T) {
	analyzer := &mockAnalyzer{}
	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)
	ctx := context.Background()

	for i := 0; i < testWorkerConfig().MaxAttempts; i++ {
		_, err := f.repo.Transition(ctx, ticket.ID, domain.TicketStatusPending, domain.TicketStatusProcessing,
			domain.TransitionUpdate{IncrementAttempts: true})
		require.NoError(t, err)
		_, err = f.repo.Transition(ctx, ticket.ID, domain.TicketStatusProcessing, domain.TicketStatusPending,
			domain.TransitionUpdate{})
		require.NoError(t, err)
	}

	decision := f.processor.Handle(ctx, task)

	assert.Equal(t, DecisionDeadLetter, decision.Kind)
	stored, err := f.repo.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.ProcessingAttempts)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "Failed after 3 attempts: attempt budget exhausted", *stored.ErrorMessage)
	analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestConcurrentDuplicateDeliveryAnalyzesOnce(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	analyzer := analyzerFunc(func(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error) {
		calls.Add(1)
		<-gate
		return billingResult, nil
	})

	f := newFixture(t, analyzer)
	ticket, task := f.createTicket(t)

	var wg sync.WaitGroup
	decisions := make([]Decision, 2)
	for i := range decisions {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup := *task
			decisions[i] = f.processor.Handle(context.Background(), &dup)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, DecisionAck, decisions[0].Kind)
	assert.Equal(t, DecisionAck, decisions[1].Kind)

	stored, err := f.repo.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ProcessingAttempts)
	assert.Equal(t, domain.TicketStatusReady, stored.Status)
}

func TestObservedStatusesFollowLifecycle(t *testing.T) {
	var n atomic.Int32
	analyzer := analyzerFunc(func(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error) {
		if n.Add(1)%2 == 1 {
			return domain.AnalysisResult{}, &analysis.ValidationError{Field: "urgency", Message: "missing"}
		}
		return billingResult, nil
	})

	f := newFixture(t, analyzer)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		ticket, task := f.createTicket(t)
		ids = append(ids, ticket.ID)
		for j := 0; j < 4; j++ {
			f.processor.Handle(ctx, task)
		}
	}

	for _, id := range ids {
		history, err := f.repo.History(ctx, id)
		require.NoError(t, err)
		prev := domain.TicketStatusPending
		for _, h := range history {
			assert.Equal(t, prev, h.FromStatus)
			assert.True(t, domain.IsValidTransition(h.FromStatus, h.ToStatus), "%s -> %s", h.FromStatus, h.ToStatus)
			assert.LessOrEqual(t, h.Attempt, 3)
			prev = h.ToStatus
		}
		assert.True(t, prev.Terminal() || prev == domain.TicketStatusReady, prev)
	}
}
