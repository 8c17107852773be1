package grading

// QuestionType enumerates the auto-gradable question kinds.
type QuestionType string

const (
	TypeYesNo       QuestionType = "yes_no"
	TypeMCQSingle   QuestionType = "mcq_single"
	TypeMCQMultiple QuestionType = "mcq_multiple"
)

// QuestionDef is the minimal view of a question needed for grading.
// Keep this in sync with whatever fields your store uses.
type QuestionDef struct {
	ID             string
	Type           QuestionType
	Marks          float64
	CorrectAnswer  string   // yes_no only; exact, case-sensitive match
	CorrectOptions []string // option ids, MCQ types only
}

// Response is one submitted answer, keyed by question id.
type Response struct {
	QuestionID      string
	AnswerText      string
	SelectedOptions []string
}

// QuestionResult is the outcome of grading a single response.
type QuestionResult struct {
	QuestionID   string
	MarksAwarded float64
	Correct      bool
}

// Result aggregates a whole submission. MaxScore covers every question in
// the quiz; unanswered questions contribute 0 to TotalScore and produce no
// QuestionResult.
type Result struct {
	PerQuestion []QuestionResult
	TotalScore  float64
	MaxScore    float64
	Percentage  float64
}

// Strategy grades a single question response.
type Strategy interface {
	Grade(q QuestionDef, resp Response) (awarded float64, correct bool)
}

var strategies = map[QuestionType]Strategy{
	TypeYesNo:       yesNoStrategy{},
	TypeMCQSingle:   mcqSingleStrategy{},
	TypeMCQMultiple: mcqMultipleStrategy{},
}

// Grade scores responses against the live question definitions. It is pure:
// identical inputs always yield identical results. All persisted numbers are
// rounded half-up to 2 decimals here, not at display time.
func Grade(questions []QuestionDef, responses []Response) Result {
	byQuestion := make(map[string]Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}

	var res Result
	for _, q := range questions {
		res.MaxScore += q.Marks
		resp, answered := byQuestion[q.ID]
		if !answered {
			continue
		}
		s, ok := strategies[q.Type]
		if !ok {
			// unknown type: recorded as answered, no credit
			res.PerQuestion = append(res.PerQuestion, QuestionResult{QuestionID: q.ID})
			continue
		}
		awarded, correct := s.Grade(q, resp)
		awarded = Round2(awarded)
		res.PerQuestion = append(res.PerQuestion, QuestionResult{
			QuestionID:   q.ID,
			MarksAwarded: awarded,
			Correct:      correct,
		})
		res.TotalScore += awarded
	}

	res.TotalScore = Round2(res.TotalScore)
	res.MaxScore = Round2(res.MaxScore)
	if res.MaxScore > 0 {
		res.Percentage = Round2(res.TotalScore / res.MaxScore * 100)
	}
	return res
}

type yesNoStrategy struct{}

func (yesNoStrategy) Grade(q QuestionDef, resp Response) (float64, bool) {
	if resp.AnswerText == q.CorrectAnswer {
		return q.Marks, true
	}
	return 0, false
}

type mcqSingleStrategy struct{}

func (mcqSingleStrategy) Grade(q QuestionDef, resp Response) (float64, bool) {
	if len(resp.SelectedOptions) != 1 {
		return 0, false
	}
	for _, id := range q.CorrectOptions {
		if resp.SelectedOptions[0] == id {
			return q.Marks, true
		}
	}
	return 0, false
}

// mcqMultipleStrategy awards proportional partial credit and deducts the
// same proportion per wrong selection, clamped to [0, marks]. Correct is
// only true for an exact match of the correct set.
type mcqMultipleStrategy struct{}

func (mcqMultipleStrategy) Grade(q QuestionDef, resp Response) (float64, bool) {
	correct := toSet(q.CorrectOptions)
	selected := toSet(resp.SelectedOptions)

	totalCorrect := len(correct)
	if totalCorrect < 1 {
		totalCorrect = 1
	}
	correctSelected, incorrectSelected := 0, 0
	for id := range selected {
		if _, ok := correct[id]; ok {
			correctSelected++
		} else {
			incorrectSelected++
		}
	}

	positive := float64(correctSelected) / float64(totalCorrect) * q.Marks
	negative := float64(incorrectSelected) / float64(totalCorrect) * q.Marks
	raw := positive - negative
	if raw < 0 {
		raw = 0
	}
	if raw > q.Marks {
		raw = q.Marks
	}
	exact := correctSelected == len(correct) && incorrectSelected == 0 && len(correct) > 0
	return raw, exact
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
