package model

import (
	"maps"
	"slices"
)

// AnswerMap holds survey answers keyed by question index.
type AnswerMap struct {
	answers map[int]string
}

// NewAnswerMap creates an empty AnswerMap.
func NewAnswerMap() *AnswerMap {
	return &AnswerMap{answers: make(map[int]string)}
}

// Put records the answer for a question, replacing any previous one.
func (m *AnswerMap) Put(index int, answer string) {
	m.answers[index] = answer
}

// Get returns the answer for a question.
func (m *AnswerMap) Get(index int) (string, bool) {
	answer, ok := m.answers[index]
	return answer, ok
}

// Len returns the number of answered questions.
func (m *AnswerMap) Len() int {
	return len(m.answers)
}

// Indexes returns the answered question indexes in ascending order.
func (m *AnswerMap) Indexes() []int {
	return slices.Sorted(maps.Keys(m.answers))
}

// Equal reports whether both maps hold exactly the same answers.
func (m *AnswerMap) Equal(other *AnswerMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	return maps.Equal(m.answers, other.answers)
}
