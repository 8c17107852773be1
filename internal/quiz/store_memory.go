package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/opencampus/quizcore/internal/grading"
)

// memoryStore mirrors the SQL store's semantics for tests and offline runs.
type memoryStore struct {
	mu          sync.RWMutex
	quizzes     map[string]Quiz
	submissions map[string]Submission
	byQuizUser  map[string]string // quizID|userID -> submissionID
	answers     map[string]map[string]Answer
}

func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:     map[string]Quiz{},
		submissions: map[string]Submission{},
		byQuizUser:  map[string]string{},
		answers:     map[string]map[string]Answer{},
	}
}

func pairKey(quizID, userID string) string { return quizID + "|" + userID }

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return q, nil
}

func (m *memoryStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return s, nil
}

func (m *memoryStore) FindSubmission(_ context.Context, quizID, userID string) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byQuizUser[pairKey(quizID, userID)]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return m.submissions[id], nil
}

func (m *memoryStore) CreateSubmission(_ context.Context, sub Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey(sub.QuizID, sub.UserID)
	if _, exists := m.byQuizUser[k]; exists {
		return nil
	}
	m.byQuizUser[k] = sub.ID
	m.submissions[sub.ID] = sub
	return nil
}

func (m *memoryStore) StartSubmission(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || s.Status != StatusNotStarted {
		return false, nil
	}
	s.Status = StatusInProgress
	s.StartedAt = &at
	m.submissions[id] = s
	return true, nil
}

func (m *memoryStore) SaveDraft(_ context.Context, id string, draft []DraftAnswer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || s.Status != StatusInProgress {
		return false, nil
	}
	s.Draft = append([]DraftAnswer(nil), draft...)
	m.submissions[id] = s
	return true, nil
}

func (m *memoryStore) FinalizeSubmission(_ context.Context, id string, to SubmissionStatus, submittedAt time.Time, timeTakenMin int, answers []Answer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || s.Status.Finalized() {
		return false, nil
	}
	s.Status = to
	s.SubmittedAt = &submittedAt
	s.TimeTakenMin = &timeTakenMin
	s.Draft = nil
	m.submissions[id] = s

	rows := make(map[string]Answer, len(answers))
	for _, a := range answers {
		a.SubmissionID = id
		rows[a.QuestionID] = a
	}
	m.answers[id] = rows
	return true, nil
}

func (m *memoryStore) RecordGrades(_ context.Context, id string, res grading.Result) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return false, nil
	}
	switch s.Status {
	case StatusSubmitted, StatusAutoSubmitted:
	default:
		return false, nil
	}
	for _, pq := range res.PerQuestion {
		a, ok := m.answers[id][pq.QuestionID]
		if !ok {
			continue
		}
		awarded, correct := pq.MarksAwarded, pq.Correct
		a.MarksAwarded = &awarded
		a.IsCorrect = &correct
		m.answers[id][pq.QuestionID] = a
	}
	total, max, pct := res.TotalScore, res.MaxScore, res.Percentage
	s.TotalScore = &total
	s.MaxScore = &max
	s.Percentage = &pct
	s.Status = StatusGraded
	m.submissions[id] = s
	return true, nil
}

func (m *memoryStore) ListAnswers(_ context.Context, submissionID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Answer, 0, len(m.answers[submissionID]))
	for _, a := range m.answers[submissionID] {
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryStore) ListOverdueInProgress(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.submissions {
		if s.Status != StatusInProgress || s.StartedAt == nil {
			continue
		}
		q, ok := m.quizzes[s.QuizID]
		if !ok || q.Status != QuizPublished || !q.AutoSubmit {
			continue
		}
		if dl, ok := Deadline(q, s); ok && !now.Before(dl) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryStore) ListExpiredNotStarted(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.submissions {
		if s.Status != StatusNotStarted {
			continue
		}
		q, ok := m.quizzes[s.QuizID]
		if !ok || !q.AutoSubmit || q.EndAt == nil {
			continue
		}
		if !now.Before(*q.EndAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryStore) ListUngraded(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.submissions {
		if (s.Status == StatusSubmitted || s.Status == StatusAutoSubmitted) && s.MaxScore == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryStore) ListGradedByQuiz(_ context.Context, quizID string) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Submission
	for _, s := range m.submissions {
		if s.QuizID == quizID && (s.Status == StatusGraded || s.Status == StatusPublished) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) PublishResults(_ context.Context, quizID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.submissions {
		if s.QuizID == quizID && s.Status == StatusGraded {
			s.Status = StatusPublished
			m.submissions[id] = s
			n++
		}
	}
	return n, nil
}
