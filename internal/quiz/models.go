package quiz

import (
	"time"

	"github.com/opencampus/quizcore/internal/grading"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
)

// SubmissionStatus only ever advances forward; no path re-enters an earlier
// state.
type SubmissionStatus string

const (
	StatusNotStarted    SubmissionStatus = "not_started"
	StatusInProgress    SubmissionStatus = "in_progress"
	StatusSubmitted     SubmissionStatus = "submitted"
	StatusAutoSubmitted SubmissionStatus = "auto_submitted"
	StatusGraded        SubmissionStatus = "graded"
	StatusPublished     SubmissionStatus = "published"
)

// Finalized reports whether s is past in_progress, i.e. Start/Submit must be
// rejected with ErrAlreadySubmitted.
func (s SubmissionStatus) Finalized() bool {
	switch s {
	case StatusSubmitted, StatusAutoSubmitted, StatusGraded, StatusPublished:
		return true
	}
	return false
}

type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text,omitempty"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID            string               `json:"id"`
	QuizID        string               `json:"quiz_id,omitempty"`
	Position      int                  `json:"position"`
	Type          grading.QuestionType `json:"question_type"`
	Prompt        string               `json:"prompt,omitempty"`
	Marks         float64              `json:"marks"`
	CorrectAnswer string               `json:"correct_answer,omitempty"` // yes_no only
	Options       []Option             `json:"options,omitempty"`        // MCQ types only
}

// Def projects the question into the grading engine's view.
func (q Question) Def() grading.QuestionDef {
	def := grading.QuestionDef{
		ID:            q.ID,
		Type:          q.Type,
		Marks:         q.Marks,
		CorrectAnswer: q.CorrectAnswer,
	}
	for _, o := range q.Options {
		if o.IsCorrect {
			def.CorrectOptions = append(def.CorrectOptions, o.ID)
		}
	}
	return def
}

type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      QuizStatus `json:"status"`
	StartAt     *time.Time `json:"start_date,omitempty"` // attempt window, optional
	EndAt       *time.Time `json:"end_date,omitempty"`
	DurationMin int        `json:"duration_minutes"`
	AutoSubmit  bool       `json:"auto_submit"`
	TotalMarks  float64    `json:"total_marks"`
	Questions   []Question `json:"questions,omitempty"`
	CreatedAt   int64      `json:"created_at,omitempty"`
}

// Defs returns the grading view of every question, in quiz order.
func (q Quiz) Defs() []grading.QuestionDef {
	defs := make([]grading.QuestionDef, 0, len(q.Questions))
	for _, qs := range q.Questions {
		defs = append(defs, qs.Def())
	}
	return defs
}

// DraftAnswer is one item of the autosave scratch buffer and of the final
// submit payload. It is never validated against the answer key.
type DraftAnswer struct {
	QuestionID      string   `json:"question_id"`
	AnswerText      string   `json:"answer_text,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

// Submission is one student's single attempt at one quiz. At most one row
// exists per (quiz, student) pair.
type Submission struct {
	ID           string           `json:"id"`
	QuizID       string           `json:"quiz_id"`
	UserID       string           `json:"user_id"`
	Status       SubmissionStatus `json:"status"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	SubmittedAt  *time.Time       `json:"submitted_at,omitempty"`
	TimeTakenMin *int             `json:"time_taken_minutes,omitempty"`
	Draft        []DraftAnswer    `json:"auto_saved_data,omitempty"`
	TotalScore   *float64         `json:"total_score,omitempty"`
	MaxScore     *float64         `json:"max_score,omitempty"`
	Percentage   *float64         `json:"percentage,omitempty"`
}

// Answer is the authoritative graded record, one row per question per
// submission, replaced atomically at submit time.
type Answer struct {
	SubmissionID    string   `json:"submission_id"`
	QuestionID      string   `json:"question_id"`
	AnswerText      string   `json:"answer_text,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`
	MarksAwarded    *float64 `json:"marks_awarded,omitempty"`
	IsCorrect       *bool    `json:"is_correct,omitempty"`
}
