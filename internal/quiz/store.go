package quiz

import (
	"context"
	"time"

	"github.com/opencampus/quizcore/internal/grading"
)

// Store is the persistence contract for quizzes, submissions and answers.
// Mutations that participate in the state machine are compare-and-set on the
// current status and report false when the precondition no longer holds, so
// concurrent callers (client, status poll, sweeper) cannot double-apply a
// transition.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	// GetQuiz returns the quiz with its full question definitions, answer
	// keys included. Callers serving students must strip the keys.
	GetQuiz(ctx context.Context, id string) (Quiz, error)

	GetSubmission(ctx context.Context, id string) (Submission, error)
	// FindSubmission looks up the unique row for (quiz, student), returning
	// ErrSubmissionNotFound when none exists.
	FindSubmission(ctx context.Context, quizID, userID string) (Submission, error)
	// CreateSubmission inserts sub; a concurrent insert for the same
	// (quiz, student) pair is not an error, the existing row wins.
	CreateSubmission(ctx context.Context, sub Submission) error
	// StartSubmission flips not_started → in_progress and stamps started_at.
	StartSubmission(ctx context.Context, id string, at time.Time) (bool, error)
	// SaveDraft overwrites the autosave buffer while in_progress.
	SaveDraft(ctx context.Context, id string, draft []DraftAnswer) (bool, error)

	// FinalizeSubmission atomically moves a not-yet-finalized submission to
	// submitted/auto_submitted, freezes submitted_at and time_taken, clears
	// the draft buffer and replaces the answer rows.
	FinalizeSubmission(ctx context.Context, id string, to SubmissionStatus, submittedAt time.Time, timeTakenMin int, answers []Answer) (bool, error)
	// RecordGrades atomically writes per-question results and the aggregate,
	// moving submitted/auto_submitted → graded.
	RecordGrades(ctx context.Context, id string, res grading.Result) (bool, error)
	ListAnswers(ctx context.Context, submissionID string) ([]Answer, error)

	// Sweeper predicates. All compare against the supplied instant, never
	// their own clock.
	ListOverdueInProgress(ctx context.Context, now time.Time) ([]string, error)
	ListExpiredNotStarted(ctx context.Context, now time.Time) ([]string, error)
	ListUngraded(ctx context.Context) ([]string, error)

	ListGradedByQuiz(ctx context.Context, quizID string) ([]Submission, error)
	// PublishResults releases every graded submission of a quiz to students.
	PublishResults(ctx context.Context, quizID string) (int64, error)
}
