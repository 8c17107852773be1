package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opencampus/quizcore/internal/grading"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}
func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// two-question quiz: yes_no worth 5 (correct "yes"), mcq_multiple worth 10
// (correct options X and Y), 30 minute budget.
func seedQuiz(t *testing.T, store Store, mutate func(*Quiz)) Quiz {
	t.Helper()
	q := Quiz{
		ID:          "quiz-1",
		Title:       "Chapter test",
		Status:      QuizPublished,
		DurationMin: 30,
		AutoSubmit:  true,
		TotalMarks:  15,
		Questions: []Question{
			{ID: "q1", Type: grading.TypeYesNo, Marks: 5, CorrectAnswer: "yes"},
			{ID: "q2", Type: grading.TypeMCQMultiple, Marks: 10, Options: []Option{
				{ID: "X", IsCorrect: true},
				{ID: "Y", IsCorrect: true},
				{ID: "Z"},
			}},
		},
	}
	if mutate != nil {
		mutate(&q)
	}
	if err := store.PutQuiz(context.Background(), q); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return q
}

func newTestService(t *testing.T) (*Service, Store, *fakeClock) {
	t.Helper()
	store := NewInMemoryStore()
	clk := newFakeClock()
	return NewService(store, clk.Now, nil), store, clk
}

func TestStartIdempotent(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedQuiz(t, store, nil)
	ctx := context.Background()

	first, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Advance(5 * time.Minute)
	second, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("start not idempotent: %s vs %s", first.ID, second.ID)
	}
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Fatalf("started_at reset on second start: %v vs %v", second.StartedAt, first.StartedAt)
	}
}

func TestStartWindowChecks(t *testing.T) {
	base := newFakeClock().Now()
	later := base.Add(time.Hour)
	earlier := base.Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*Quiz)
		reason string
	}{
		{"draft quiz", func(q *Quiz) { q.Status = QuizDraft }, ReasonNotPublished},
		{"opens later", func(q *Quiz) { q.StartAt = &later }, ReasonNotStartedYet},
		{"already closed", func(q *Quiz) { q.EndAt = &earlier }, ReasonEnded},
		{"end boundary is inclusive", func(q *Quiz) { q.EndAt = &base }, ReasonEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			seedQuiz(t, store, tc.mutate)
			_, err := svc.Start(context.Background(), "quiz-1", "stu-1")
			var na *NotAccessibleError
			if !errors.As(err, &na) {
				t.Fatalf("expected NotAccessibleError, got %v", err)
			}
			if na.Reason != tc.reason {
				t.Fatalf("reason = %q; want %q", na.Reason, tc.reason)
			}
		})
	}
}

func TestStartUnknownQuiz(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), "nope", "stu-1")
	var na *NotAccessibleError
	if !errors.As(err, &na) || na.Reason != ReasonNotFound {
		t.Fatalf("expected not-found NotAccessibleError, got %v", err)
	}
}

func TestAutoSaveRequiresActiveSession(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedQuiz(t, store, nil)
	ctx := context.Background()

	if err := svc.AutoSave(ctx, "missing", nil); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	sub, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	draft := []DraftAnswer{{QuestionID: "q1", AnswerText: "yes"}}
	if err := svc.AutoSave(ctx, sub.ID, draft); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if _, err := svc.Submit(ctx, sub.ID, draft, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.AutoSave(ctx, sub.ID, draft); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("autosave after submit: expected ErrNoActiveSession, got %v", err)
	}
}

func TestSubmitGradesEndToEnd(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedQuiz(t, store, nil)
	ctx := context.Background()

	sub, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.AutoSave(ctx, sub.ID, []DraftAnswer{{QuestionID: "q1", AnswerText: "yes"}}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Minute)

	out, err := svc.Submit(ctx, sub.ID, []DraftAnswer{
		{QuestionID: "q1", AnswerText: "yes"},
		{QuestionID: "q2", SelectedOptions: []string{"X"}},
	}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.TotalScore != 10 || out.MaxScore != 15 || out.Percentage != 66.67 {
		t.Fatalf("got %v/%v/%v; want 10/15/66.67", out.TotalScore, out.MaxScore, out.Percentage)
	}
	if out.TimeTakenMin != 10 {
		t.Fatalf("time taken = %d; want 10", out.TimeTakenMin)
	}

	got, err := store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusGraded {
		t.Fatalf("status = %s; want graded", got.Status)
	}
	if got.Draft != nil {
		t.Fatal("draft buffer must be cleared at finalize")
	}

	answers, err := store.ListAnswers(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	byQ := map[string]Answer{}
	for _, a := range answers {
		byQ[a.QuestionID] = a
	}
	if a := byQ["q1"]; a.MarksAwarded == nil || *a.MarksAwarded != 5 || a.IsCorrect == nil || !*a.IsCorrect {
		t.Fatalf("q1 answer not graded as 5/true: %+v", a)
	}
	if a := byQ["q2"]; a.MarksAwarded == nil || *a.MarksAwarded != 5 || a.IsCorrect == nil || *a.IsCorrect {
		t.Fatalf("q2 answer not graded as 5/false: %+v", a)
	}
}

func TestNoDoubleGrading(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedQuiz(t, store, nil)
	ctx := context.Background()

	sub, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, sub.ID, []DraftAnswer{{QuestionID: "q1", AnswerText: "yes"}}, false); err != nil {
		t.Fatal(err)
	}
	before, _ := store.GetSubmission(ctx, sub.ID)

	if _, err := svc.Submit(ctx, sub.ID, []DraftAnswer{
		{QuestionID: "q1", AnswerText: "yes"},
		{QuestionID: "q2", SelectedOptions: []string{"X", "Y"}},
	}, false); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if _, err := svc.Start(ctx, "quiz-1", "stu-1"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("restart after submit: expected ErrAlreadySubmitted, got %v", err)
	}

	after, _ := store.GetSubmission(ctx, sub.ID)
	if *after.TotalScore != *before.TotalScore || *after.Percentage != *before.Percentage {
		t.Fatalf("rejected submit mutated scores: %v → %v", *before.TotalScore, *after.TotalScore)
	}
}

func TestStatusEnforcesDeadline(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedQuiz(t, store, nil)
	ctx := context.Background()

	sub, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.AutoSave(ctx, sub.ID, []DraftAnswer{
		{QuestionID: "q1", AnswerText: "yes"},
		{QuestionID: "q2", SelectedOptions: []string{"X", "Y"}},
	}); err != nil {
		t.Fatal(err)
	}

	// poll well past the 30 minute budget; the read itself must finalize
	clk.Advance(45 * time.Minute)
	info, err := svc.Status(ctx, sub.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != StatusGraded {
		t.Fatalf("status = %s; want graded", info.Status)
	}
	if info.TimeLeftSec != 0 {
		t.Fatalf("time left = %d; want 0", info.TimeLeftSec)
	}
	if info.Draft != nil {
		t.Fatal("draft must not be returned after finalization")
	}

	got, _ := store.GetSubmission(ctx, sub.ID)
	// time taken is computed from the deadline instant, not the poll time
	if got.TimeTakenMin == nil || *got.TimeTakenMin != 30 {
		t.Fatalf("time taken = %v; want 30", got.TimeTakenMin)
	}
	if *got.TotalScore != 15 || *got.Percentage != 100 {
		t.Fatalf("autosaved draft not graded: %v/%v", *got.TotalScore, *got.Percentage)
	}
}

func TestStatusReportsRemainingTime(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedQuiz(t, store, nil)
	ctx := context.Background()

	sub, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Minute)
	info, err := svc.Status(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != StatusInProgress {
		t.Fatalf("status = %s; want in_progress", info.Status)
	}
	if info.TimeLeftSec != 20*60 {
		t.Fatalf("time left = %d; want %d", info.TimeLeftSec, 20*60)
	}
	if info.EndsAt == nil {
		t.Fatal("ends_at missing for bounded session")
	}
}

func TestDeadlineMonotonicity(t *testing.T) {
	clk := newFakeClock()
	started := clk.Now()
	sub := Submission{StartedAt: &started}
	q := Quiz{DurationMin: 30}

	dl, ok := Deadline(q, sub)
	if !ok || !dl.Equal(started.Add(30*time.Minute)) {
		t.Fatalf("deadline = %v; want started+30m", dl)
	}

	// an earlier end date shortens the deadline
	earlier := started.Add(10 * time.Minute)
	q.EndAt = &earlier
	if dl, _ := Deadline(q, sub); !dl.Equal(earlier) {
		t.Fatalf("deadline = %v; want %v", dl, earlier)
	}

	// a later end date never lengthens it
	later := started.Add(2 * time.Hour)
	q.EndAt = &later
	if dl, _ := Deadline(q, sub); !dl.Equal(started.Add(30*time.Minute)) {
		t.Fatalf("deadline = %v; want started+30m", dl)
	}

	if _, ok := Deadline(Quiz{}, sub); ok {
		t.Fatal("no bounds must mean no deadline")
	}
}

func TestTimeTakenClampedAtZero(t *testing.T) {
	svc, store, clk := newTestService(t)
	q := seedQuiz(t, store, nil)
	ctx := context.Background()

	sub, err := svc.Start(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}

	// teacher moves the end date to before the attempt started; the
	// deadline now precedes started_at, so time taken clamps to 0
	endAt := sub.StartedAt.Add(-5 * time.Minute)
	q.EndAt = &endAt
	if err := store.PutQuiz(ctx, q); err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Minute)
	if _, err := svc.Status(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusGraded {
		t.Fatalf("status = %s; want graded", got.Status)
	}
	if got.TimeTakenMin == nil || *got.TimeTakenMin != 0 {
		t.Fatalf("time taken = %v; want 0", got.TimeTakenMin)
	}
}
