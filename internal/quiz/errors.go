package quiz

import "errors"

var (
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrAlreadySubmitted rejects Start or Submit on a submission already
	// past in_progress.
	ErrAlreadySubmitted = errors.New("quiz already submitted")

	// ErrNoActiveSession rejects AutoSave with no in_progress row.
	ErrNoActiveSession = errors.New("no active quiz session found")
)

// Accessibility reasons surfaced to the client so the UI can distinguish
// "opens later" from "closed".
const (
	ReasonNotFound      = "quiz not found"
	ReasonNotPublished  = "quiz is not published"
	ReasonNotStartedYet = "quiz has not started yet"
	ReasonEnded         = "quiz has ended"
)

// NotAccessibleError means the quiz cannot be attempted right now. Reason is
// one of the Reason* constants.
type NotAccessibleError struct {
	Reason string
}

func (e *NotAccessibleError) Error() string { return "quiz not accessible: " + e.Reason }
