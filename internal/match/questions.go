// internal/match/questions.go
package match

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QuestionSource supplies the fixed, ordered question list a match is
// created with. The list is drawn once at creation; the sequencer never
// reorders it.
type QuestionSource interface {
	Questions() []Question
}

// NextQuestion returns the question at index, or ok=false when the list is
// exhausted. Pure: fixed order, no shuffling, no adaptive difficulty.
func NextQuestion(questions []Question, index int) (Question, bool) {
	if index < 0 || index >= len(questions) {
		return Question{}, false
	}
	return questions[index], true
}

// StaticSource serves a fixed slice, copying it per match so one match's
// state can never alias another's.
type StaticSource struct {
	list []Question
}

// NewStaticSource builds a source over the given list.
func NewStaticSource(list []Question) *StaticSource {
	return &StaticSource{list: list}
}

func (s *StaticSource) Questions() []Question {
	out := make([]Question, len(s.list))
	copy(out, s.list)
	return out
}

// DefaultQuestions is the built-in set used when no question file is
// configured.
func DefaultQuestions() []Question {
	return []Question{
		{ID: 1, Text: "What is the capital of France?", Answer: "Paris"},
		{ID: 2, Text: "What is 5 + 7?", Answer: "12"},
		{ID: 3, Text: "Fill in the blank: The ___ is the powerhouse of the cell.", Answer: "mitochondria"},
	}
}

// LoadQuestionFile reads a YAML question list, e.g.:
//
//	questions:
//	  - id: 1
//	    text: "..."
//	    answer: "..."
func LoadQuestionFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}
	var doc struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question file: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("question file %s contains no questions", path)
	}
	return NewStaticSource(doc.Questions), nil
}
