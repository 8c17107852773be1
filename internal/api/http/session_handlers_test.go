package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opencampus/quizcore/internal/auth"
	"github.com/opencampus/quizcore/internal/grading"
	"github.com/opencampus/quizcore/internal/quiz"
	"github.com/opencampus/quizcore/internal/rbac"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// asUser stands in for the JWT middleware in tests.
func asUser(userID, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithSubject(r.Context(), userID)
			ctx = rbac.WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(t *testing.T) (*chi.Mux, quiz.Store, *fakeClock) {
	t.Helper()
	store := quiz.NewInMemoryStore()
	clk := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := quiz.NewService(store, clk.Now, nil)

	q := quiz.Quiz{
		ID:          "quiz-1",
		Title:       "Chapter test",
		Status:      quiz.QuizPublished,
		DurationMin: 30,
		AutoSubmit:  true,
		TotalMarks:  15,
		Questions: []quiz.Question{
			{ID: "q1", Type: grading.TypeYesNo, Marks: 5, CorrectAnswer: "yes"},
			{ID: "q2", Type: grading.TypeMCQMultiple, Marks: 10, Options: []quiz.Option{
				{ID: "X", IsCorrect: true},
				{ID: "Y", IsCorrect: true},
				{ID: "Z"},
			}},
		},
	}
	if err := store.PutQuiz(context.Background(), q); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Post("/quizzes/{quizID}/session/start", StartSessionHandler(svc))
	r.Post("/sessions/{submissionID}/autosave", AutoSaveHandler(svc, store))
	r.Post("/sessions/{submissionID}/submit", SubmitHandler(svc, store))
	r.Get("/sessions/{submissionID}/status", SessionStatusHandler(svc, store))
	r.Get("/quizzes/{quizID}", GetQuizHandler(store))
	return r, store, clk
}

func doJSON(t *testing.T, h http.Handler, user, role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	asUser(user, role)(h).ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestSessionFlowOverHTTP(t *testing.T) {
	r, _, clk := newTestRouter(t)

	w := doJSON(t, r, "stu-1", "student", "POST", "/quizzes/quiz-1/session/start", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	sid, _ := decode(t, w)["submission_id"].(string)
	if sid == "" {
		t.Fatal("no submission_id in start response")
	}

	w = doJSON(t, r, "stu-1", "student", "POST", "/sessions/"+sid+"/autosave", map[string]any{
		"answers": []map[string]any{{"question_id": "q1", "answer_text": "yes"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("autosave: %d %s", w.Code, w.Body.String())
	}

	clk.Advance(12 * time.Minute)
	w = doJSON(t, r, "stu-1", "student", "GET", "/sessions/"+sid+"/status", nil)
	status := decode(t, w)
	if status["status"] != "in_progress" {
		t.Fatalf("status = %v; want in_progress", status["status"])
	}
	if secs, _ := status["time_left_seconds"].(float64); secs != 18*60 {
		t.Fatalf("time_left_seconds = %v; want %d", status["time_left_seconds"], 18*60)
	}
	if status["answers"] == nil {
		t.Fatal("draft answers missing while in_progress")
	}

	w = doJSON(t, r, "stu-1", "student", "POST", "/sessions/"+sid+"/submit", map[string]any{
		"answers": []map[string]any{
			{"question_id": "q1", "answer_text": "yes"},
			{"question_id": "q2", "selected_options": []string{"X"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	results, _ := resp["results"].(map[string]any)
	if results["totalScore"].(float64) != 10 || results["maxScore"].(float64) != 15 || results["percentage"].(float64) != 66.67 {
		t.Fatalf("results = %v; want 10/15/66.67", results)
	}
	if resp["time_taken_minutes"].(float64) != 12 {
		t.Fatalf("time_taken_minutes = %v; want 12", resp["time_taken_minutes"])
	}

	// second submit is rejected without touching the grade
	w = doJSON(t, r, "stu-1", "student", "POST", "/sessions/"+sid+"/submit", map[string]any{
		"answers": []map[string]any{{"question_id": "q1", "answer_text": "yes"}},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("resubmit: %d; want 409", w.Code)
	}

	// autosave after finalize reports no active session
	w = doJSON(t, r, "stu-1", "student", "POST", "/sessions/"+sid+"/autosave", map[string]any{
		"answers": []map[string]any{{"question_id": "q1", "answer_text": "no"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("autosave after submit: %d; want 400", w.Code)
	}

	w = doJSON(t, r, "stu-1", "student", "GET", "/sessions/"+sid+"/status", nil)
	status = decode(t, w)
	if status["status"] != "graded" {
		t.Fatalf("status = %v; want graded", status["status"])
	}
	if status["answers"] != nil {
		t.Fatal("draft must not be exposed after finalization")
	}
}

func TestSessionOwnership(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, "stu-1", "student", "POST", "/quizzes/quiz-1/session/start", map[string]any{})
	sid, _ := decode(t, w)["submission_id"].(string)

	w = doJSON(t, r, "stu-2", "student", "GET", "/sessions/"+sid+"/status", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("other student: %d; want 403", w.Code)
	}
	// teachers may view any session
	w = doJSON(t, r, "teach-1", "teacher", "GET", "/sessions/"+sid+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("teacher view: %d; want 200", w.Code)
	}
}

func TestStartRejectionsOverHTTP(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, "stu-1", "student", "POST", "/quizzes/nope/session/start", map[string]any{})
	if w.Code != http.StatusForbidden {
		t.Fatalf("unknown quiz: %d; want 403", w.Code)
	}
	if reason := decode(t, w)["reason"]; reason != quiz.ReasonNotFound {
		t.Fatalf("reason = %v; want %q", reason, quiz.ReasonNotFound)
	}
}

func TestSubmitValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, "stu-1", "student", "POST", "/quizzes/quiz-1/session/start", map[string]any{})
	sid, _ := decode(t, w)["submission_id"].(string)

	// answers missing question_id are rejected before any write
	w = doJSON(t, r, "stu-1", "student", "POST", "/sessions/"+sid+"/submit", map[string]any{
		"answers": []map[string]any{{"answer_text": "yes"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid payload: %d; want 400", w.Code)
	}

	w = doJSON(t, r, "stu-1", "student", "GET", "/sessions/"+sid+"/status", nil)
	if got := decode(t, w)["status"]; got != "in_progress" {
		t.Fatalf("session mutated by rejected payload: %v", got)
	}
}

func TestGetQuizStripsAnswerKeys(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, "stu-1", "student", "GET", "/quizzes/quiz-1", nil)
	var got quiz.Quiz
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	for _, q := range got.Questions {
		if q.CorrectAnswer != "" {
			t.Fatal("correct_answer leaked to student")
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				t.Fatal("is_correct leaked to student")
			}
		}
	}

	w = doJSON(t, r, "teach-1", "teacher", "GET", "/quizzes/quiz-1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Questions[0].CorrectAnswer != "yes" {
		t.Fatal("teacher must see answer keys")
	}
}
