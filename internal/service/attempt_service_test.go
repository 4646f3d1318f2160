package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/quiz"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"github.com/stemsi/shikkha-backend/internal/service"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type memCatalog map[uuid.UUID]*quiz.Quiz

func (m memCatalog) FetchQuiz(_ context.Context, id uuid.UUID) (*quiz.Quiz, error) {
	q, ok := m[id]
	if !ok {
		return nil, quiz.ErrNotFound
	}
	return q, nil
}

func (m memCatalog) ListActiveQuizzes(_ context.Context, _ *uuid.UUID) ([]quiz.Quiz, error) {
	var out []quiz.Quiz
	for _, q := range m {
		if q.Active {
			out = append(out, *q)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []quiz.Result
	err     error
}

func (s *recordingSink) Save(_ context.Context, res quiz.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return s.err
}

func (s *recordingSink) saved() []quiz.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]quiz.Result(nil), s.results...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []service.PresenceEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev service.PresenceEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []service.PresenceEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]service.PresenceEventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

// storedResults stands in for the result table.
type storedResults struct {
	mu      sync.Mutex
	results map[uuid.UUID]quiz.Result
	err     error
}

func (r *storedResults) GetByAttempt(_ context.Context, id uuid.UUID) (*quiz.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	res, ok := r.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

// threeQuestionQuiz has points 1, 1, 2 with correct options 0, 0, 1.
func threeQuestionQuiz(t *testing.T) *quiz.Quiz {
	t.Helper()
	q, err := quiz.New(quiz.Quiz{
		ID:               uuid.New(),
		Title:            "Fractions",
		TimeLimitMinutes: 1,
		Active:           true,
		Questions: []quiz.Question{
			{Prompt: "1/2 + 1/2", Options: []string{"1", "2", "1/4"}, CorrectOption: 0, Points: 1},
			{Prompt: "1/3 of 3", Options: []string{"1", "3", "9"}, CorrectOption: 0, Points: 1},
			{Prompt: "3/4 - 1/4", Options: []string{"1/4", "1/2", "1"}, CorrectOption: 1, Points: 2},
		},
	})
	if err != nil {
		t.Fatalf("new quiz: %v", err)
	}
	return q
}

type fixture struct {
	svc      *service.AttemptService
	sink     *recordingSink
	notifier *recordingNotifier
	ticks    chan time.Time
	quiz     *quiz.Quiz
}

func newFixture(t *testing.T, opts ...service.AttemptServiceOption) *fixture {
	t.Helper()
	q := threeQuestionQuiz(t)
	f := &fixture{
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
		ticks:    make(chan time.Time),
		quiz:     q,
	}
	delivery := quiz.NewDelivery(memCatalog{q.ID: q}, func() time.Time { return epoch })
	opts = append([]service.AttemptServiceOption{
		service.WithTimerOptions(
			quiz.WithTickSource(f.ticks),
			quiz.WithClock(func() time.Time { return epoch.Add(time.Minute) }),
		),
	}, opts...)
	f.svc = service.NewAttemptService(delivery, f.sink, f.notifier, zerolog.Nop(), opts...)
	t.Cleanup(f.svc.Shutdown)
	return f
}

func TestAttemptServiceManualSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	v, err := f.svc.Start(ctx, f.quiz.ID, actor)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if v.State != quiz.StateInProgress || v.RemainingSeconds != 60 || v.QuestionCount != 3 {
		t.Fatalf("unexpected view %+v", v)
	}

	if _, err := f.svc.Answer(ctx, v.ID, actor, 0, 0); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.svc.Answer(ctx, v.ID, actor, 1, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}

	res, err := f.svc.Submit(ctx, v.ID, actor)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AchievedPoints != 1 || res.TotalPoints != 4 || res.Percentage != 25 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Reason != quiz.ReasonManual {
		t.Fatalf("expected MANUAL, got %s", res.Reason)
	}

	again, err := f.svc.Submit(ctx, v.ID, actor)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if again.SubmittedAt != res.SubmittedAt || again.Percentage != res.Percentage {
		t.Fatalf("second submit rescored: %+v", again)
	}
	if n := len(f.sink.saved()); n != 1 {
		t.Fatalf("expected result saved once, got %d", n)
	}

	want := []service.PresenceEventType{
		service.EventAttemptStarted,
		service.EventAnswerSelected,
		service.EventAnswerSelected,
		service.EventAttemptSubmitted,
	}
	got := f.notifier.types()
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v, want %v", got, want)
		}
	}
}

func TestAttemptServiceStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	first, err := f.svc.Start(ctx, f.quiz.ID, actor)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.svc.Start(ctx, f.quiz.ID, actor)
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same attempt, got %s and %s", first.ID, second.ID)
	}
	if f.svc.Len() != 1 {
		t.Fatalf("expected one registered attempt, got %d", f.svc.Len())
	}

	other, err := f.svc.Start(ctx, f.quiz.ID, uuid.New())
	if err != nil {
		t.Fatalf("start other actor: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("different actors share an attempt")
	}
}

func TestAttemptServiceOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	v, err := f.svc.Start(ctx, f.quiz.ID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	stranger := uuid.New()
	if _, err := f.svc.Get(v.ID, stranger); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound for stranger, got %v", err)
	}
	if _, err := f.svc.Answer(ctx, v.ID, stranger, 0, 0); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound on answer, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, v.ID, stranger); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound on submit, got %v", err)
	}
	if _, err := f.svc.Start(ctx, uuid.New(), owner); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown quiz, got %v", err)
	}
}

func TestAttemptServiceNavigateAndAnswerErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	v, _ := f.svc.Start(ctx, f.quiz.ID, actor)

	q, err := f.svc.Navigate(v.ID, actor, 5)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if q.Position != 2 || q.Selected != nil {
		t.Fatalf("unexpected question view %+v", q)
	}

	if _, err := f.svc.Answer(ctx, v.ID, actor, 2, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	q, _ = f.svc.Current(v.ID, actor)
	if q.Selected == nil || *q.Selected != 1 {
		t.Fatalf("expected selected option 1, got %+v", q.Selected)
	}

	if _, err := f.svc.Answer(ctx, v.ID, actor, 3, 0); !errors.Is(err, quiz.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}

	if _, err := f.svc.Submit(ctx, v.ID, actor); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Navigate(v.ID, actor, -1); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if _, err := f.svc.Answer(ctx, v.ID, actor, 0, 0); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestAttemptServiceExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	v, _ := f.svc.Start(ctx, f.quiz.ID, actor)
	_, _ = f.svc.Answer(ctx, v.ID, actor, 2, 1)

	done, err := f.svc.Done(v.ID, actor)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	for i := 0; i < 60; i++ {
		f.ticks <- epoch
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("attempt not auto-submitted")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.sink.saved()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired result never saved")
		}
		time.Sleep(time.Millisecond)
	}
	saved := f.sink.saved()[0]
	if saved.Reason != quiz.ReasonExpired || saved.AchievedPoints != 2 || saved.TimeTakenSeconds != 60 {
		t.Fatalf("unexpected expired result %+v", saved)
	}

	res, err := f.svc.Submit(ctx, v.ID, actor)
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if res.Reason != quiz.ReasonExpired {
		t.Fatalf("late submit should return the expired result, got %s", res.Reason)
	}
	if n := len(f.sink.saved()); n != 1 {
		t.Fatalf("expected one save, got %d", n)
	}
}

func TestAttemptServiceAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	v, _ := f.svc.Start(ctx, f.quiz.ID, actor)
	f.ticks <- epoch

	if err := f.svc.Abandon(ctx, v.ID, actor); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	got, err := f.svc.Get(v.ID, actor)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != quiz.StateInProgress || !got.Abandoned || got.Result != nil {
		t.Fatalf("unexpected abandoned view %+v", got)
	}
	if got.RemainingSeconds != 59 {
		t.Fatalf("expected 59s frozen, got %d", got.RemainingSeconds)
	}

	if _, err := f.svc.Submit(ctx, v.ID, actor); !errors.Is(err, service.ErrAttemptAbandoned) {
		t.Fatalf("expected ErrAttemptAbandoned, got %v", err)
	}
	if len(f.sink.saved()) != 0 {
		t.Fatal("abandoned attempt produced a result")
	}

	restarted, err := f.svc.Start(ctx, f.quiz.ID, actor)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.ID == v.ID {
		t.Fatal("start after abandon reused the abandoned attempt")
	}
}

func TestAttemptServiceResultNotSaved(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("redis down")
	ctx := context.Background()
	actor := uuid.New()
	v, _ := f.svc.Start(ctx, f.quiz.ID, actor)

	res, err := f.svc.Submit(ctx, v.ID, actor)
	if !errors.Is(err, service.ErrResultNotSaved) {
		t.Fatalf("expected ErrResultNotSaved, got %v", err)
	}
	if res == nil || res.Unanswered != 3 {
		t.Fatalf("expected the scored result alongside the error, got %+v", res)
	}
	if _, err := f.svc.Submit(ctx, v.ID, actor); !errors.Is(err, service.ErrResultNotSaved) {
		t.Fatalf("repeat submit should keep reporting the save failure, got %v", err)
	}
	if n := len(f.sink.saved()); n != 1 {
		t.Fatalf("save must be attempted exactly once, got %d", n)
	}
}

func TestAttemptServiceSubmitSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	attemptID := uuid.New()

	res, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, actor, &attemptID, map[int]int{0: 0, 2: 1}, 30)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if res.AttemptID != attemptID || res.AchievedPoints != 3 || res.Percentage != 75 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Reason != quiz.ReasonManual {
		t.Fatalf("expected MANUAL reason, got %s", res.Reason)
	}
	if len(f.sink.saved()) != 1 {
		t.Fatal("snapshot result not saved")
	}

	if _, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, actor, nil, map[int]int{7: 0}, 0); !errors.Is(err, quiz.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestAttemptServiceSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	submitted, _ := f.svc.Start(ctx, f.quiz.ID, actor)
	_, _ = f.svc.Submit(ctx, submitted.ID, actor)
	_, _ = f.svc.Start(ctx, f.quiz.ID, uuid.New())

	if n := f.svc.Sweep(time.Now(), time.Hour); n != 0 {
		t.Fatalf("evicted %d attempts inside the retention window", n)
	}
	if n := f.svc.Sweep(time.Now().Add(2*time.Hour), time.Hour); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if f.svc.Len() != 1 {
		t.Fatalf("in-progress attempt evicted, %d left", f.svc.Len())
	}
	if _, err := f.svc.Get(submitted.ID, actor); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("expected evicted attempt to be gone, got %v", err)
	}
}

func TestAttemptServiceSnapshotRetryReturnsFirstResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	attemptID := uuid.New()

	first, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, actor, &attemptID, map[int]int{0: 0}, 10)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if first.Percentage != 25 {
		t.Fatalf("expected 25%%, got %d", first.Percentage)
	}

	again, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, actor, &attemptID, map[int]int{0: 0, 1: 0, 2: 1}, 20)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if again.Percentage != first.Percentage || again.TimeTakenSeconds != first.TimeTakenSeconds {
		t.Fatalf("retry rescored: first %+v, retry %+v", first, again)
	}
	if n := len(f.sink.saved()); n != 1 {
		t.Fatalf("expected one save for one attempt, got %d", n)
	}
}

func TestAttemptServiceSnapshotRejectsForeignID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	attemptID := uuid.New()

	if _, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, owner, &attemptID, map[int]int{0: 0}, 10); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, uuid.New(), &attemptID, map[int]int{2: 1}, 10); !errors.Is(err, service.ErrAttemptIDTaken) {
		t.Fatalf("expected ErrAttemptIDTaken for another actor, got %v", err)
	}

	live, _ := f.svc.Start(ctx, f.quiz.ID, owner)
	liveID := live.ID
	if _, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, owner, &liveID, map[int]int{2: 1}, 10); !errors.Is(err, service.ErrAttemptIDTaken) {
		t.Fatalf("expected ErrAttemptIDTaken for an interactive attempt, got %v", err)
	}
	got, err := f.svc.Get(liveID, owner)
	if err != nil || got.State != quiz.StateInProgress || got.Result != nil {
		t.Fatalf("interactive attempt was touched: %+v, %v", got, err)
	}
	if n := len(f.sink.saved()); n != 1 {
		t.Fatalf("rejected snapshots must not be saved, got %d saves", n)
	}
}

func TestAttemptServiceSnapshotFindsStoredResult(t *testing.T) {
	owner := uuid.New()
	attemptID := uuid.New()
	stored := &storedResults{results: map[uuid.UUID]quiz.Result{}}
	f := newFixture(t, service.WithResultLookup(stored))
	stored.results[attemptID] = quiz.Result{
		AttemptID: attemptID, QuizID: f.quiz.ID, ActorID: owner,
		AchievedPoints: 4, TotalPoints: 4, Correct: 3, Percentage: 100,
	}
	ctx := context.Background()

	res, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, owner, &attemptID, map[int]int{0: 1}, 5)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if res.Percentage != 100 {
		t.Fatalf("expected the stored result, got %+v", res)
	}
	if _, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, uuid.New(), &attemptID, nil, 5); !errors.Is(err, service.ErrAttemptIDTaken) {
		t.Fatalf("expected ErrAttemptIDTaken, got %v", err)
	}
	if n := len(f.sink.saved()); n != 0 {
		t.Fatalf("stored attempt saved again %d times", n)
	}

	stored.err = errors.New("connection refused")
	fresh := uuid.New()
	if _, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, owner, &fresh, nil, 5); err == nil {
		t.Fatal("expected the lookup failure to surface")
	}
	if n := len(f.sink.saved()); n != 0 {
		t.Fatalf("snapshot saved despite failed lookup, %d saves", n)
	}
}

func TestAttemptServiceConcurrentSnapshotsScoreOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	attemptID := uuid.New()

	var wg sync.WaitGroup
	percentages := make([]int, 8)
	errs := make([]error, 8)
	for i := range percentages {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers := map[int]int{0: 0}
			if i%2 == 1 {
				answers = map[int]int{0: 0, 1: 0, 2: 1}
			}
			res, err := f.svc.SubmitSnapshot(ctx, f.quiz.ID, actor, &attemptID, answers, 10)
			errs[i] = err
			if res != nil {
				percentages[i] = res.Percentage
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if percentages[i] != percentages[0] {
			t.Fatalf("requests disagree on the result: %v", percentages)
		}
	}
	if n := len(f.sink.saved()); n != 1 {
		t.Fatalf("expected one save, got %d", n)
	}
}

func TestAttemptServiceAbandonRacesSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submits := 0
	for i := 0; i < 100; i++ {
		actor := uuid.New()
		v, err := f.svc.Start(ctx, f.quiz.ID, actor)
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		var wg sync.WaitGroup
		var submitErr, abandonErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, submitErr = f.svc.Submit(ctx, v.ID, actor)
		}()
		go func() {
			defer wg.Done()
			abandonErr = f.svc.Abandon(ctx, v.ID, actor)
		}()
		wg.Wait()

		if (submitErr == nil) == (abandonErr == nil) {
			t.Fatalf("run %d: submit err %v, abandon err %v; exactly one must win", i, submitErr, abandonErr)
		}
		got, _ := f.svc.Get(v.ID, actor)
		if got.Abandoned == (got.Result != nil) {
			t.Fatalf("run %d: attempt both abandoned and scored, or neither: %+v", i, got)
		}
		if submitErr == nil {
			submits++
		}
	}
	if n := len(f.sink.saved()); n != submits {
		t.Fatalf("expected %d saves, got %d", submits, n)
	}
}
