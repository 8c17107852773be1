package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opencampus/quizcore/internal/auth"
	"github.com/opencampus/quizcore/internal/quiz"
	"github.com/opencampus/quizcore/internal/rbac"
)

var validate = validator.New()

type answerPayload struct {
	QuestionID      string   `json:"question_id" validate:"required"`
	AnswerText      string   `json:"answer_text"`
	SelectedOptions []string `json:"selected_options" validate:"omitempty,dive,required"`
}

func toDraft(in []answerPayload) []quiz.DraftAnswer {
	out := make([]quiz.DraftAnswer, 0, len(in))
	for _, a := range in {
		out = append(out, quiz.DraftAnswer{
			QuestionID:      a.QuestionID,
			AnswerText:      a.AnswerText,
			SelectedOptions: a.SelectedOptions,
		})
	}
	return out
}

// POST /quizzes/{quizID}/session/start
func StartSessionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		userID := auth.SubjectFromContext(r.Context())
		sub, err := svc.Start(r.Context(), quizID, userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"submission_id": sub.ID,
			"started_at":    sub.StartedAt.UTC().Format(time.RFC3339),
		})
	}
}

// POST /sessions/{submissionID}/autosave
func AutoSaveHandler(svc *quiz.Service, store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := ownedSubmission(w, r, store)
		if !ok {
			return
		}
		var req struct {
			Answers []answerPayload `json:"answers" validate:"dive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeValidationError(w, err)
			return
		}
		if err := svc.AutoSave(r.Context(), sub.ID, toDraft(req.Answers)); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// POST /sessions/{submissionID}/submit
func SubmitHandler(svc *quiz.Service, store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := ownedSubmission(w, r, store)
		if !ok {
			return
		}
		var req struct {
			Answers      []answerPayload `json:"answers" validate:"dive"`
			IsAutoSubmit bool            `json:"is_auto_submit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeValidationError(w, err)
			return
		}
		out, err := svc.Submit(r.Context(), sub.ID, toDraft(req.Answers), req.IsAutoSubmit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": map[string]float64{
				"totalScore": out.TotalScore,
				"maxScore":   out.MaxScore,
				"percentage": out.Percentage,
			},
			"time_taken_minutes": out.TimeTakenMin,
		})
	}
}

// GET /sessions/{submissionID}/status
func SessionStatusHandler(svc *quiz.Service, store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := ownedSubmission(w, r, store)
		if !ok {
			return
		}
		info, err := svc.Status(r.Context(), sub.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		resp := map[string]any{
			"status":            info.Status,
			"time_left_seconds": info.TimeLeftSec,
		}
		if info.EndsAt != nil {
			resp["ends_at"] = info.EndsAt.UTC().Format(time.RFC3339)
		}
		if info.Status == quiz.StatusInProgress {
			resp["answers"] = info.Draft
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ownedSubmission loads the submission and enforces that the caller is its
// owner, unless their role may view any session.
func ownedSubmission(w http.ResponseWriter, r *http.Request, store quiz.Store) (quiz.Submission, bool) {
	id := chi.URLParam(r, "submissionID")
	sub, err := store.GetSubmission(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return quiz.Submission{}, false
	}
	subject := auth.SubjectFromContext(r.Context())
	role := rbac.RoleFromContext(r.Context())
	if sub.UserID != subject && !rbac.NewChecker(nil).Has(role, "session:view-all") {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return quiz.Submission{}, false
	}
	return sub, true
}
