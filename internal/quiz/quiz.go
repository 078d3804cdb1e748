// Package quiz serves multiple-choice finance questions.
package quiz

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCount is the number of questions drawn when none is requested.
const DefaultCount = 5

// MaxCount caps a single draw.
const MaxCount = 50

//go:embed questions.yaml
var builtin []byte

// Question is one multiple-choice item. Answer is the text of the correct
// option.
type Question struct {
	ID       int      `yaml:"id" json:"id"`
	Subject  string   `yaml:"subject" json:"subject"`
	Question string   `yaml:"question" json:"question"`
	Options  []string `yaml:"options" json:"options"`
	Answer   string   `yaml:"answer" json:"-"`
}

// Bank is an immutable set of questions.
type Bank struct {
	Subjects  []string   `yaml:"subjects"`
	Questions []Question `yaml:"questions"`
}

// ErrUnknownQuestion is returned by Check for an id not in the bank.
var ErrUnknownQuestion = errors.New("unknown question")

// Builtin returns the embedded question bank.
func Builtin() (*Bank, error) {
	return Parse(builtin)
}

// Parse decodes and validates a YAML bank.
func Parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	seen := make(map[int]bool, len(b.Questions))
	for _, q := range b.Questions {
		if seen[q.ID] {
			return nil, fmt.Errorf("question %d: duplicate id", q.ID)
		}
		seen[q.ID] = true
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %d: needs at least two options", q.ID)
		}
		if !slices.Contains(q.Options, q.Answer) {
			return nil, fmt.Errorf("question %d: answer is not one of the options", q.ID)
		}
	}
	return &b, nil
}

// Draw shuffles the questions for subject (all subjects when empty) and
// returns up to count of them. count <= 0 means DefaultCount.
func (b *Bank) Draw(subject string, count int, rng *rand.Rand) []Question {
	if count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}
	var pool []Question
	for _, q := range b.Questions {
		if subject == "" || strings.EqualFold(q.Subject, subject) {
			pool = append(pool, q)
		}
	}
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if count < len(pool) {
		pool = pool[:count]
	}
	return pool
}

// Check reports whether choice is the answer to question id, and returns the
// correct answer.
func (b *Bank) Check(id int, choice string) (bool, string, error) {
	for _, q := range b.Questions {
		if q.ID == id {
			return choice == q.Answer, q.Answer, nil
		}
	}
	return false, "", ErrUnknownQuestion
}

// Session walks through a drawn set of questions and keeps the score.
type Session struct {
	Questions []Question
	current   int
	score     int
}

// NewSession starts a session over qs.
func NewSession(qs []Question) *Session {
	return &Session{Questions: qs}
}

// Current returns the question being asked, or false once done.
func (s *Session) Current() (Question, bool) {
	if s.Done() {
		return Question{}, false
	}
	return s.Questions[s.current], true
}

// Index is the zero-based position of the current question.
func (s *Session) Index() int { return s.current }

// Answer scores choice against the current question and advances.
func (s *Session) Answer(choice string) bool {
	q, ok := s.Current()
	if !ok {
		return false
	}
	s.current++
	if choice == q.Answer {
		s.score++
		return true
	}
	return false
}

// Score is the number of correct answers so far.
func (s *Session) Score() int { return s.score }

// Done reports whether every question has been answered.
func (s *Session) Done() bool { return s.current >= len(s.Questions) }
