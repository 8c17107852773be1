package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/opencampus/quizcore/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP. Business-rule
// outcomes travel as structured payloads; anything else is logged and
// surfaced as a generic failure so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var na *quiz.NotAccessibleError
	switch {
	case errors.As(err, &na):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":  "quiz not accessible",
			"reason": na.Reason,
		})
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already submitted"})
	case errors.Is(err, quiz.ErrNoActiveSession):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No active quiz session found"})
	case errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, quiz.ErrSubmissionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		log.Printf("api: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":  "validation failed",
		"detail": err.Error(),
	})
}
