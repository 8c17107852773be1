package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opencampus/quizcore/internal/grading"
	"github.com/opencampus/quizcore/internal/quiz"
	"github.com/opencampus/quizcore/internal/rbac"
)

type optionReq struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type questionReq struct {
	ID            string      `json:"id"`
	Type          string      `json:"question_type" validate:"required,oneof=yes_no mcq_single mcq_multiple"`
	Prompt        string      `json:"prompt"`
	Marks         float64     `json:"marks" validate:"required,gt=0"`
	CorrectAnswer string      `json:"correct_answer" validate:"required_if=Type yes_no"`
	Options       []optionReq `json:"options" validate:"required_unless=Type yes_no"`
}

type putQuizReq struct {
	ID              string        `json:"id"`
	Title           string        `json:"title" validate:"required"`
	Status          string        `json:"status" validate:"omitempty,oneof=draft published"`
	StartDate       *time.Time    `json:"start_date"`
	EndDate         *time.Time    `json:"end_date"`
	DurationMinutes int           `json:"duration_minutes" validate:"gte=0"`
	AutoSubmit      *bool         `json:"auto_submit"`
	TotalMarks      *float64      `json:"total_marks" validate:"omitempty,gt=0"`
	Questions       []questionReq `json:"questions" validate:"required,min=1,dive"`
}

// POST /quizzes — create or replace a quiz with its questions.
func PutQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req putQuizReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeValidationError(w, err)
			return
		}

		q := quiz.Quiz{
			ID:          req.ID,
			Title:       req.Title,
			Status:      quiz.QuizStatus(req.Status),
			StartAt:     req.StartDate,
			EndAt:       req.EndDate,
			DurationMin: req.DurationMinutes,
			AutoSubmit:  true,
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Status == "" {
			q.Status = quiz.QuizDraft
		}
		if req.AutoSubmit != nil {
			q.AutoSubmit = *req.AutoSubmit
		}
		sum := 0.0
		for i, qr := range req.Questions {
			qu := quiz.Question{
				ID:            qr.ID,
				Position:      i,
				Type:          grading.QuestionType(qr.Type),
				Prompt:        qr.Prompt,
				Marks:         qr.Marks,
				CorrectAnswer: qr.CorrectAnswer,
			}
			if qu.ID == "" {
				qu.ID = uuid.NewString()
			}
			for _, o := range qr.Options {
				opt := quiz.Option{ID: o.ID, Text: o.Text, IsCorrect: o.IsCorrect}
				if opt.ID == "" {
					opt.ID = uuid.NewString()
				}
				qu.Options = append(qu.Options, opt)
			}
			sum += qr.Marks
			q.Questions = append(q.Questions, qu)
		}
		// total_marks tracks the question sum unless explicitly overridden
		q.TotalMarks = grading.Round2(sum)
		if req.TotalMarks != nil {
			q.TotalMarks = *req.TotalMarks
		}

		if err := store.PutQuiz(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": q.ID, "total_marks": q.TotalMarks})
	}
}

// GET /quizzes/{quizID} — answer keys are stripped unless the caller's role
// may view them.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !checker.Has(rbac.RoleFromContext(r.Context()), "quiz:view-keys") {
			for i := range q.Questions {
				q.Questions[i].CorrectAnswer = ""
				for j := range q.Questions[i].Options {
					q.Questions[i].Options[j].IsCorrect = false
				}
			}
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// GET /quizzes/{quizID}/results
func QuizResultsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := store.ListGradedByQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if subs == nil {
			subs = []quiz.Submission{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": subs})
	}
}

// POST /quizzes/{quizID}/results/publish — release graded scores to students.
func PublishResultsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.PublishResults(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"published": n})
	}
}
