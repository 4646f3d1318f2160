package quiz_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func startedAttempt(t *testing.T) *quiz.Attempt {
	t.Helper()
	a := quiz.NewAttempt(sampleQuiz(t), uuid.New())
	if err := a.Start(epoch); err != nil {
		t.Fatalf("start: %v", err)
	}
	return a
}

func TestAttemptLifecycle(t *testing.T) {
	a := quiz.NewAttempt(sampleQuiz(t), uuid.New())
	if a.State() != quiz.StateNotStarted {
		t.Fatalf("expected NOT_STARTED, got %s", a.State())
	}
	if err := a.Record(0, 0); !errors.Is(err, quiz.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted before start, got %v", err)
	}
	if _, _, err := a.Submit(quiz.ReasonManual, epoch); !errors.Is(err, quiz.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted on submit, got %v", err)
	}

	if err := a.Start(epoch); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Start(epoch.Add(time.Minute)); err != nil {
		t.Fatalf("restart should be a no-op: %v", err)
	}
	if !a.StartedAt().Equal(epoch) {
		t.Fatalf("start time moved to %v", a.StartedAt())
	}
	if a.Remaining() != 60 {
		t.Fatalf("expected 60s budget, got %d", a.Remaining())
	}
}

func TestRecordOverwritesAndCounts(t *testing.T) {
	a := startedAttempt(t)
	_ = a.Record(0, 1)
	_ = a.Record(0, 0)
	_ = a.Record(2, 1)

	if a.AnsweredCount() != 2 {
		t.Fatalf("expected 2 answered, got %d", a.AnsweredCount())
	}
	if got := a.Answers(); !reflect.DeepEqual(got, map[int]int{0: 0, 2: 1}) {
		t.Fatalf("unexpected answers %v", got)
	}
}

func TestRecordOutOfRangeLeavesAnswers(t *testing.T) {
	a := startedAttempt(t)
	if err := a.Record(1, 2); err != nil {
		t.Fatalf("record: %v", err)
	}
	before := a.Answers()

	cases := []struct{ pos, opt int }{
		{-1, 0},
		{3, 0},
		{1, 3},
		{1, -1},
	}
	for _, tc := range cases {
		err := a.Record(tc.pos, tc.opt)
		var rerr *quiz.RangeError
		if !errors.As(err, &rerr) || !errors.Is(err, quiz.ErrOutOfRange) {
			t.Fatalf("record(%d,%d): expected RangeError, got %v", tc.pos, tc.opt, err)
		}
	}
	if after := a.Answers(); !reflect.DeepEqual(before, after) {
		t.Fatalf("answers changed after rejected records: %v -> %v", before, after)
	}
}

func TestAdvanceClamps(t *testing.T) {
	a := startedAttempt(t)

	if p, err := a.Advance(-1); err != nil || p != 0 {
		t.Fatalf("advance(-1) at 0: got %d, %v", p, err)
	}
	if p, _ := a.Advance(1); p != 1 {
		t.Fatalf("expected position 1, got %d", p)
	}
	if p, _ := a.Advance(10); p != 2 {
		t.Fatalf("expected clamp to 2, got %d", p)
	}
	q, err := a.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if q.Position != 2 {
		t.Fatalf("expected current question 2, got %d", q.Position)
	}
}

func TestCurrentOnEmptyQuiz(t *testing.T) {
	a := quiz.NewAttempt(&quiz.Quiz{Title: "empty", TimeLimitMinutes: 1}, uuid.New())
	_ = a.Start(epoch)
	if _, err := a.Current(); !errors.Is(err, quiz.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if p, err := a.Advance(1); err != nil || p != 0 {
		t.Fatalf("advance on empty quiz: got %d, %v", p, err)
	}
}

func TestSubmitTwiceReturnsSameResult(t *testing.T) {
	a := startedAttempt(t)
	_ = a.Record(0, 0)

	first, ok, err := a.Submit(quiz.ReasonManual, epoch.Add(10*time.Second))
	if err != nil || !ok {
		t.Fatalf("first submit: ok=%v err=%v", ok, err)
	}
	second, ok, err := a.Submit(quiz.ReasonExpired, epoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if ok {
		t.Fatal("second submit reported itself as first")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
	if second.Reason != quiz.ReasonManual {
		t.Fatalf("expected stored reason MANUAL, got %s", second.Reason)
	}
}

func TestConcurrentSubmitScoresOnce(t *testing.T) {
	a := startedAttempt(t)
	_ = a.Record(2, 1)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reason := quiz.ReasonManual
			if i%2 == 0 {
				reason = quiz.ReasonExpired
			}
			if _, first, err := a.Submit(reason, epoch); err == nil && first {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if firsts != 1 {
		t.Fatalf("expected exactly one scoring submit, got %d", firsts)
	}
}

func TestMutationAfterSubmit(t *testing.T) {
	a := startedAttempt(t)
	if _, _, err := a.Submit(quiz.ReasonManual, epoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := a.Record(0, 0); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted on record, got %v", err)
	}
	if _, err := a.Advance(1); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted on advance, got %v", err)
	}
	if err := a.Start(epoch); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted on start, got %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("done channel not closed after submit")
	}
}

func snapshotResult(t *testing.T, a *quiz.Attempt, err error) quiz.Result {
	t.Helper()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	res, ok := a.Result()
	if !ok || a.State() != quiz.StateSubmitted {
		t.Fatalf("snapshot attempt not submitted: %s", a.State())
	}
	return res
}

func TestSubmitSnapshot(t *testing.T) {
	q := sampleQuiz(t)
	attemptID := uuid.New()

	a, err := quiz.SubmitSnapshot(q, attemptID, uuid.New(), map[int]int{0: 0, 1: 1}, 45, epoch)
	res := snapshotResult(t, a, err)
	if res.AttemptID != attemptID || a.ID != attemptID {
		t.Fatalf("attempt id not carried through")
	}
	if res.Percentage != 25 || res.TimeTakenSeconds != 45 {
		t.Fatalf("unexpected result %+v", res)
	}

	a, err = quiz.SubmitSnapshot(q, uuid.Nil, uuid.New(), nil, 500, epoch)
	res = snapshotResult(t, a, err)
	if res.TimeTakenSeconds != q.TimeLimitSeconds() {
		t.Fatalf("elapsed beyond the limit should cap at the limit, got %d", res.TimeTakenSeconds)
	}

	if _, err := quiz.SubmitSnapshot(q, uuid.Nil, uuid.New(), map[int]int{5: 0}, 0, epoch); !errors.Is(err, quiz.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestAbandonFreezesAttempt(t *testing.T) {
	a := startedAttempt(t)
	_ = a.Record(0, 0)

	if err := a.Abandon(); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if err := a.Abandon(); !errors.Is(err, quiz.ErrAbandoned) {
		t.Fatalf("expected ErrAbandoned on second abandon, got %v", err)
	}
	if a.State() != quiz.StateInProgress || !a.Abandoned() {
		t.Fatalf("expected abandoned IN_PROGRESS, got %s abandoned=%v", a.State(), a.Abandoned())
	}
	if _, _, err := a.Submit(quiz.ReasonManual, epoch); !errors.Is(err, quiz.ErrAbandoned) {
		t.Fatalf("expected ErrAbandoned on submit, got %v", err)
	}
	if err := a.Record(1, 0); !errors.Is(err, quiz.ErrAbandoned) {
		t.Fatalf("expected ErrAbandoned on record, got %v", err)
	}
	if _, err := a.Advance(1); !errors.Is(err, quiz.ErrAbandoned) {
		t.Fatalf("expected ErrAbandoned on advance, got %v", err)
	}
	before := a.Remaining()
	if _, expired := a.Tick(); expired || a.Remaining() != before {
		t.Fatalf("abandoned attempt kept ticking")
	}
	if _, ok := a.Result(); ok {
		t.Fatal("abandoned attempt has a result")
	}
}

func TestAbandonAfterSubmitFails(t *testing.T) {
	a := startedAttempt(t)
	if _, _, err := a.Submit(quiz.ReasonManual, epoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := a.Abandon(); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if a.Abandoned() {
		t.Fatal("submitted attempt marked abandoned")
	}
}

func TestAbandonAndSubmitAreExclusive(t *testing.T) {
	for i := 0; i < 200; i++ {
		a := startedAttempt(t)
		var wg sync.WaitGroup
		var submitErr, abandonErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, submitErr = a.Submit(quiz.ReasonManual, epoch)
		}()
		go func() {
			defer wg.Done()
			abandonErr = a.Abandon()
		}()
		wg.Wait()

		if (submitErr == nil) == (abandonErr == nil) {
			t.Fatalf("run %d: submit err %v, abandon err %v; exactly one must win", i, submitErr, abandonErr)
		}
		_, scored := a.Result()
		if scored == a.Abandoned() {
			t.Fatalf("run %d: scored=%v abandoned=%v", i, scored, a.Abandoned())
		}
	}
}
