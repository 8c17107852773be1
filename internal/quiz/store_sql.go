package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencampus/quizcore/internal/grading"
)

// SQLStore persists the quiz domain over database/sql. Placeholders use the
// $n form, which both the pgx stdlib driver and modernc sqlite accept.
// Timestamps are stored as unix seconds.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := q.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quizzes (id,title,status,start_at,end_at,duration_min,auto_submit,total_marks,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
		   title=EXCLUDED.title, status=EXCLUDED.status, start_at=EXCLUDED.start_at,
		   end_at=EXCLUDED.end_at, duration_min=EXCLUDED.duration_min,
		   auto_submit=EXCLUDED.auto_submit, total_marks=EXCLUDED.total_marks`,
		q.ID, q.Title, string(q.Status), unixPtr(q.StartAt), unixPtr(q.EndAt),
		q.DurationMin, q.AutoSubmit, q.TotalMarks, createdAt); err != nil {
		return fmt.Errorf("upsert quiz: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id=$1`, q.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	for i, qu := range q.Questions {
		oj, err := json.Marshal(qu.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id,quiz_id,position,qtype,prompt,marks,correct_answer,options_json)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			qu.ID, q.ID, i, string(qu.Type), qu.Prompt, qu.Marks, qu.CorrectAnswer, string(oj)); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,title,status,start_at,end_at,duration_min,auto_submit,total_marks,created_at
		 FROM quizzes WHERE id=$1`, id)
	var (
		q              Quiz
		status         string
		startAt, endAt sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.Title, &status, &startAt, &endAt,
		&q.DurationMin, &q.AutoSubmit, &q.TotalMarks, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, err
	}
	q.Status = QuizStatus(status)
	q.StartAt = timePtr(startAt)
	q.EndAt = timePtr(endAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,position,qtype,prompt,marks,correct_answer,options_json
		 FROM questions WHERE quiz_id=$1 ORDER BY position`, id)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qu  Question
			typ string
			oj  string
		)
		if err := rows.Scan(&qu.ID, &qu.Position, &typ, &qu.Prompt, &qu.Marks, &qu.CorrectAnswer, &oj); err != nil {
			return Quiz{}, err
		}
		qu.QuizID = id
		qu.Type = grading.QuestionType(typ)
		if err := json.Unmarshal([]byte(oj), &qu.Options); err != nil {
			return Quiz{}, fmt.Errorf("decode options: %w", err)
		}
		q.Questions = append(q.Questions, qu)
	}
	return q, rows.Err()
}

const submissionCols = `id,quiz_id,user_id,status,started_at,submitted_at,time_taken_min,autosave_json,total_score,max_score,percentage`

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id=$1`, id)
	return scanSubmission(row)
}

func (s *SQLStore) FindSubmission(ctx context.Context, quizID, userID string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE quiz_id=$1 AND user_id=$2`, quizID, userID)
	return scanSubmission(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanSubmission(row rowScanner) (Submission, error) {
	var (
		sub                    Submission
		status                 string
		startedAt, submittedAt sql.NullInt64
		timeTaken              sql.NullInt64
		draftJSON              string
		total, max, pct        sql.NullFloat64
	)
	err := row.Scan(&sub.ID, &sub.QuizID, &sub.UserID, &status, &startedAt, &submittedAt,
		&timeTaken, &draftJSON, &total, &max, &pct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, ErrSubmissionNotFound
		}
		return Submission{}, err
	}
	sub.Status = SubmissionStatus(status)
	sub.StartedAt = timePtr(startedAt)
	sub.SubmittedAt = timePtr(submittedAt)
	if timeTaken.Valid {
		v := int(timeTaken.Int64)
		sub.TimeTakenMin = &v
	}
	if draftJSON != "" && draftJSON != "[]" {
		if err := json.Unmarshal([]byte(draftJSON), &sub.Draft); err != nil {
			return Submission{}, fmt.Errorf("decode draft: %w", err)
		}
	}
	sub.TotalScore = floatPtr(total)
	sub.MaxScore = floatPtr(max)
	sub.Percentage = floatPtr(pct)
	return sub, nil
}

func (s *SQLStore) CreateSubmission(ctx context.Context, sub Submission) error {
	draft, err := json.Marshal(sub.Draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if sub.Draft == nil {
		draft = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id,quiz_id,user_id,status,started_at,autosave_json)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (quiz_id,user_id) DO NOTHING`,
		sub.ID, sub.QuizID, sub.UserID, string(sub.Status), unixPtr(sub.StartedAt), string(draft))
	return err
}

func (s *SQLStore) StartSubmission(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status=$1, started_at=$2 WHERE id=$3 AND status=$4`,
		string(StatusInProgress), at.Unix(), id, string(StatusNotStarted))
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

func (s *SQLStore) SaveDraft(ctx context.Context, id string, draft []DraftAnswer) (bool, error) {
	buf, err := json.Marshal(draft)
	if err != nil {
		return false, fmt.Errorf("marshal draft: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET autosave_json=$1 WHERE id=$2 AND status=$3`,
		string(buf), id, string(StatusInProgress))
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

func (s *SQLStore) FinalizeSubmission(ctx context.Context, id string, to SubmissionStatus, submittedAt time.Time, timeTakenMin int, answers []Answer) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// CAS on status: only a not-yet-finalized row can be frozen, so a race
	// between the client, the status poll and the sweeper resolves to a
	// single winner.
	res, err := tx.ExecContext(ctx,
		`UPDATE submissions
		 SET status=$1, submitted_at=$2, time_taken_min=$3, autosave_json='[]'
		 WHERE id=$4 AND status IN ($5,$6)`,
		string(to), submittedAt.Unix(), timeTakenMin, id,
		string(StatusNotStarted), string(StatusInProgress))
	if err != nil {
		return false, err
	}
	won, err := oneRow(res)
	if err != nil || !won {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE submission_id=$1`, id); err != nil {
		return false, fmt.Errorf("clear answers: %w", err)
	}
	for _, a := range answers {
		sel, err := json.Marshal(a.SelectedOptions)
		if err != nil {
			return false, fmt.Errorf("marshal selections: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO answers (submission_id,question_id,answer_text,selected_json)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (submission_id,question_id) DO UPDATE SET
			   answer_text=EXCLUDED.answer_text, selected_json=EXCLUDED.selected_json`,
			id, a.QuestionID, a.AnswerText, string(sel)); err != nil {
			return false, fmt.Errorf("insert answer: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) RecordGrades(ctx context.Context, id string, res grading.Result) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	upd, err := tx.ExecContext(ctx,
		`UPDATE submissions SET total_score=$1, max_score=$2, percentage=$3, status=$4
		 WHERE id=$5 AND status IN ($6,$7)`,
		res.TotalScore, res.MaxScore, res.Percentage, string(StatusGraded), id,
		string(StatusSubmitted), string(StatusAutoSubmitted))
	if err != nil {
		return false, err
	}
	won, err := oneRow(upd)
	if err != nil || !won {
		return false, err
	}

	for _, pq := range res.PerQuestion {
		if _, err := tx.ExecContext(ctx,
			`UPDATE answers SET marks_awarded=$1, is_correct=$2
			 WHERE submission_id=$3 AND question_id=$4`,
			pq.MarksAwarded, pq.Correct, id, pq.QuestionID); err != nil {
			return false, fmt.Errorf("grade answer: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) ListAnswers(ctx context.Context, submissionID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT submission_id,question_id,answer_text,selected_json,marks_awarded,is_correct
		 FROM answers WHERE submission_id=$1`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Answer
	for rows.Next() {
		var (
			a       Answer
			sel     string
			awarded sql.NullFloat64
			correct sql.NullBool
		)
		if err := rows.Scan(&a.SubmissionID, &a.QuestionID, &a.AnswerText, &sel, &awarded, &correct); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sel), &a.SelectedOptions); err != nil {
			return nil, fmt.Errorf("decode selections: %w", err)
		}
		a.MarksAwarded = floatPtr(awarded)
		if correct.Valid {
			v := correct.Bool
			a.IsCorrect = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListOverdueInProgress(ctx context.Context, now time.Time) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT s.id FROM submissions s
		 JOIN quizzes q ON q.id = s.quiz_id
		 WHERE s.status=$1 AND q.status=$2 AND q.auto_submit
		   AND ((q.duration_min > 0 AND s.started_at + q.duration_min*60 <= $3)
		     OR (q.end_at IS NOT NULL AND q.end_at <= $3))`,
		string(StatusInProgress), string(QuizPublished), now.Unix())
}

func (s *SQLStore) ListExpiredNotStarted(ctx context.Context, now time.Time) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT s.id FROM submissions s
		 JOIN quizzes q ON q.id = s.quiz_id
		 WHERE s.status=$1 AND q.auto_submit
		   AND q.end_at IS NOT NULL AND q.end_at <= $2`,
		string(StatusNotStarted), now.Unix())
}

func (s *SQLStore) ListUngraded(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT id FROM submissions
		 WHERE status IN ($1,$2) AND max_score IS NULL`,
		string(StatusSubmitted), string(StatusAutoSubmitted))
}

func (s *SQLStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) ListGradedByQuiz(ctx context.Context, quizID string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionCols+` FROM submissions
		 WHERE quiz_id=$1 AND status IN ($2,$3) ORDER BY user_id`,
		quizID, string(StatusGraded), string(StatusPublished))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) PublishResults(ctx context.Context, quizID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status=$1 WHERE quiz_id=$2 AND status=$3`,
		string(StatusPublished), quizID, string(StatusGraded))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
