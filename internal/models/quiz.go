package models

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is a set of multiple-choice questions attached to a subject.
// Questions are stored as a JSONB blob.
type Quiz struct {
	ID          uuid.UUID      `json:"id"`
	SubjectID   uuid.UUID      `json:"subject_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Questions   []QuizQuestion `json:"questions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// QuizQuestion is one multiple-choice question. Answer is the index into
// Choices and must never be serialized to clients; use PublicQuestions.
type QuizQuestion struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
	Answer  int      `json:"answer"`
}

// PublicQuestion is the client-facing shape of a question, answer stripped.
type PublicQuestion struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// PublicQuestions returns the quiz questions without the answer key.
func (q *Quiz) PublicQuestions() []PublicQuestion {
	out := make([]PublicQuestion, len(q.Questions))
	for i, question := range q.Questions {
		out[i] = PublicQuestion{Prompt: question.Prompt, Choices: question.Choices}
	}
	return out
}

// Grade scores a list of answer indexes against the quiz's answer key.
// Missing or out-of-range answers count as wrong.
func (q *Quiz) Grade(answers []int) (correct int) {
	for i, question := range q.Questions {
		if i < len(answers) && answers[i] == question.Answer {
			correct++
		}
	}
	return correct
}

// QuizAttempt records a graded submission.
type QuizAttempt struct {
	ID         uuid.UUID `json:"id"`
	QuizID     uuid.UUID `json:"quiz_id"`
	IdentityID uuid.UUID `json:"identity_id"`
	Answers    []int     `json:"answers"`
	Correct    int       `json:"correct"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}
