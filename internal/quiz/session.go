package quiz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opencampus/quizcore/internal/grading"
)

// Clock supplies "now" so tests can drive deadline crossing deterministically.
type Clock func() time.Time

// Recorder appends audit events. Implementations must not fail the calling
// operation; losing an event is acceptable, losing a grade is not.
type Recorder interface {
	Record(ctx context.Context, typ, key string, data any)
}

// Service is the quiz session state machine. It owns the authoritative
// status transitions, timestamps and time-remaining computation; scoring is
// delegated to the grading engine.
type Service struct {
	store Store
	now   Clock
	audit Recorder
}

func NewService(store Store, now Clock, audit Recorder) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, audit: audit}
}

// Deadline returns the instant past which an attempt must be finalized: the
// earlier of started_at + duration and the quiz end date. ok is false when
// neither bound applies. Expiry is inclusive: now >= deadline means expired.
func Deadline(q Quiz, s Submission) (time.Time, bool) {
	var dl time.Time
	ok := false
	if s.StartedAt != nil && q.DurationMin > 0 {
		dl = s.StartedAt.Add(time.Duration(q.DurationMin) * time.Minute)
		ok = true
	}
	if q.EndAt != nil && (!ok || q.EndAt.Before(dl)) {
		dl = *q.EndAt
		ok = true
	}
	return dl, ok
}

// SubmitOutcome is what the client sees after a submission is graded.
type SubmitOutcome struct {
	TotalScore   float64
	MaxScore     float64
	Percentage   float64
	TimeTakenMin int
}

// StatusInfo is the session snapshot returned by Status. Draft is only
// populated while the attempt is in progress, for client-side resume.
type StatusInfo struct {
	Status      SubmissionStatus
	TimeLeftSec int64
	EndsAt      *time.Time
	Draft       []DraftAnswer
}

// Start opens (or idempotently resumes) the student's attempt. The quiz must
// be published and inside its attempt window.
func (s *Service) Start(ctx context.Context, quizID, userID string) (Submission, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, ErrQuizNotFound) {
			return Submission{}, &NotAccessibleError{Reason: ReasonNotFound}
		}
		return Submission{}, fmt.Errorf("load quiz: %w", err)
	}
	now := s.now()
	if err := accessible(q, now); err != nil {
		return Submission{}, err
	}

	sub, err := s.store.FindSubmission(ctx, quizID, userID)
	switch {
	case err == nil:
		return s.startExisting(ctx, sub, now)
	case errors.Is(err, ErrSubmissionNotFound):
		// fall through to create
	default:
		return Submission{}, fmt.Errorf("find submission: %w", err)
	}

	fresh := Submission{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		UserID:    userID,
		Status:    StatusInProgress,
		StartedAt: &now,
	}
	if err := s.store.CreateSubmission(ctx, fresh); err != nil {
		return Submission{}, fmt.Errorf("create submission: %w", err)
	}
	// Re-read: a concurrent Start may have won the insert.
	sub, err = s.store.FindSubmission(ctx, quizID, userID)
	if err != nil {
		return Submission{}, fmt.Errorf("find submission: %w", err)
	}
	if sub.Status.Finalized() {
		return Submission{}, ErrAlreadySubmitted
	}
	return sub, nil
}

func (s *Service) startExisting(ctx context.Context, sub Submission, now time.Time) (Submission, error) {
	switch {
	case sub.Status.Finalized():
		return Submission{}, ErrAlreadySubmitted
	case sub.Status == StatusInProgress:
		return sub, nil // idempotent resume, started_at untouched
	}
	started, err := s.store.StartSubmission(ctx, sub.ID, now)
	if err != nil {
		return Submission{}, fmt.Errorf("start submission: %w", err)
	}
	if !started {
		// lost a race; the winner decided the state
		sub, err = s.store.GetSubmission(ctx, sub.ID)
		if err != nil {
			return Submission{}, fmt.Errorf("reload submission: %w", err)
		}
		if sub.Status.Finalized() {
			return Submission{}, ErrAlreadySubmitted
		}
		return sub, nil
	}
	return s.store.GetSubmission(ctx, sub.ID)
}

func accessible(q Quiz, now time.Time) error {
	if q.Status != QuizPublished {
		return &NotAccessibleError{Reason: ReasonNotPublished}
	}
	if q.StartAt != nil && now.Before(*q.StartAt) {
		return &NotAccessibleError{Reason: ReasonNotStartedYet}
	}
	if q.EndAt != nil && !now.Before(*q.EndAt) {
		return &NotAccessibleError{Reason: ReasonEnded}
	}
	return nil
}

// AutoSave overwrites the draft buffer. The payload is a scratch copy of the
// student's screen, never validated for correctness.
func (s *Service) AutoSave(ctx context.Context, submissionID string, draft []DraftAnswer) error {
	ok, err := s.store.SaveDraft(ctx, submissionID, draft)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	if !ok {
		return ErrNoActiveSession
	}
	return nil
}

// Submit finalizes the attempt with the supplied answers and grades it
// synchronously. auto marks deadline-triggered submissions; for those the
// time-taken basis is the deadline instant, not the current wall clock.
func (s *Service) Submit(ctx context.Context, submissionID string, answers []DraftAnswer, auto bool) (SubmitOutcome, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if sub.Status.Finalized() {
		return SubmitOutcome{}, ErrAlreadySubmitted
	}
	q, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("load quiz: %w", err)
	}
	basis := s.now()
	if auto {
		if dl, ok := Deadline(q, sub); ok && dl.Before(basis) {
			basis = dl
		}
	}
	return s.finalize(ctx, sub, q, answers, auto, basis)
}

// Status reports the session snapshot. Reading the status is also an
// enforcement point: an in-progress attempt past its deadline is finalized
// through the same path the sweeper uses before the snapshot is taken.
func (s *Service) Status(ctx context.Context, submissionID string) (StatusInfo, error) {
	if _, err := s.EnforceDeadline(ctx, submissionID); err != nil {
		return StatusInfo{}, err
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return StatusInfo{}, err
	}
	info := StatusInfo{Status: sub.Status}
	if sub.Status != StatusInProgress {
		return info, nil
	}
	q, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return StatusInfo{}, fmt.Errorf("load quiz: %w", err)
	}
	if dl, ok := Deadline(q, sub); ok {
		info.EndsAt = &dl
		if left := dl.Sub(s.now()); left > 0 {
			info.TimeLeftSec = int64(left.Seconds())
		}
	}
	info.Draft = sub.Draft
	return info, nil
}

// EnforceDeadline finalizes an in-progress submission whose deadline has
// passed, replaying the autosaved draft as the final answers. It reports
// whether it performed the finalization. Both the status read path and the
// sweeper call this, so deadline crossing has exactly one code path.
func (s *Service) EnforceDeadline(ctx context.Context, submissionID string) (bool, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return false, err
	}
	if sub.Status != StatusInProgress {
		return false, nil
	}
	q, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return false, fmt.Errorf("load quiz: %w", err)
	}
	dl, ok := Deadline(q, sub)
	if !ok || s.now().Before(dl) {
		return false, nil
	}
	if _, err := s.finalize(ctx, sub, q, sub.Draft, true, dl); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return false, nil // another path won the race, same terminal state
		}
		return false, err
	}
	return true, nil
}

// CloseUnstarted forces a never-started submission of a closed quiz to a
// graded terminal state with zero answers. Idempotent.
func (s *Service) CloseUnstarted(ctx context.Context, submissionID string) error {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status != StatusNotStarted {
		return nil
	}
	q, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return fmt.Errorf("load quiz: %w", err)
	}
	basis := s.now()
	if q.EndAt != nil {
		basis = *q.EndAt
	}
	_, err = s.finalize(ctx, sub, q, nil, true, basis)
	if errors.Is(err, ErrAlreadySubmitted) {
		return nil
	}
	return err
}

// Regrade re-runs grading for a submission stuck between the submit and
// graded phases (answers persisted, aggregate missing). Grading is
// deterministic, so re-running is safe.
func (s *Service) Regrade(ctx context.Context, submissionID string) error {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	switch sub.Status {
	case StatusSubmitted, StatusAutoSubmitted:
	default:
		return nil
	}
	q, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return fmt.Errorf("load quiz: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	res := grading.Grade(q.Defs(), answerResponses(answers))
	if _, err := s.store.RecordGrades(ctx, sub.ID, res); err != nil {
		return fmt.Errorf("record grades: %w", err)
	}
	s.record(ctx, "submission.graded", sub.ID, res)
	return nil
}

// finalize is the single submit path: phase 1 freezes the attempt (status,
// timestamps, answer rows) in one transaction, phase 2 grades and records
// results in another. A crash between phases leaves the row in
// submitted/auto_submitted without scores, which the sweeper's ungraded
// sweep recovers.
func (s *Service) finalize(ctx context.Context, sub Submission, q Quiz, answers []DraftAnswer, auto bool, basis time.Time) (SubmitOutcome, error) {
	timeTaken := 0
	if sub.StartedAt != nil {
		timeTaken = int(math.Round(basis.Sub(*sub.StartedAt).Minutes()))
		if timeTaken < 0 {
			timeTaken = 0
		}
	}
	to := StatusSubmitted
	if auto {
		to = StatusAutoSubmitted
	}

	rows := make([]Answer, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, Answer{
			SubmissionID:    sub.ID,
			QuestionID:      a.QuestionID,
			AnswerText:      a.AnswerText,
			SelectedOptions: a.SelectedOptions,
		})
	}
	ok, err := s.store.FinalizeSubmission(ctx, sub.ID, to, s.now(), timeTaken, rows)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("finalize submission: %w", err)
	}
	if !ok {
		return SubmitOutcome{}, ErrAlreadySubmitted
	}

	res := grading.Grade(q.Defs(), draftResponses(answers))
	// A false CAS here means a concurrent regrade recorded the same
	// deterministic result first; either way the grades are in place.
	if _, err := s.store.RecordGrades(ctx, sub.ID, res); err != nil {
		return SubmitOutcome{}, fmt.Errorf("record grades: %w", err)
	}
	s.record(ctx, "submission.graded", sub.ID, res)

	return SubmitOutcome{
		TotalScore:   res.TotalScore,
		MaxScore:     res.MaxScore,
		Percentage:   res.Percentage,
		TimeTakenMin: timeTaken,
	}, nil
}

func (s *Service) record(ctx context.Context, typ, key string, data any) {
	if s.audit != nil {
		s.audit.Record(ctx, typ, key, data)
	}
}

func draftResponses(answers []DraftAnswer) []grading.Response {
	out := make([]grading.Response, 0, len(answers))
	for _, a := range answers {
		out = append(out, grading.Response{
			QuestionID:      a.QuestionID,
			AnswerText:      a.AnswerText,
			SelectedOptions: a.SelectedOptions,
		})
	}
	return out
}

func answerResponses(answers []Answer) []grading.Response {
	out := make([]grading.Response, 0, len(answers))
	for _, a := range answers {
		out = append(out, grading.Response{
			QuestionID:      a.QuestionID,
			AnswerText:      a.AnswerText,
			SelectedOptions: a.SelectedOptions,
		})
	}
	return out
}
