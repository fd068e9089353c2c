// Package models defines data structures used throughout the question
// sourcing service.
package models

import (
	"fmt"
	"strings"
	"time"

	contextutils "osscprep/internal/utils"
)

// Difficulty is the coarse difficulty band of a question
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the bands in ascending order
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty normalizes s to a known band. The second result is false
// when s is empty or not one of easy, medium or hard.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, true
	default:
		return "", false
	}
}

// Source records which tier produced a question
type Source string

const (
	SourceLocalBank      Source = "LocalBank"
	SourceAIGenerated    Source = "AIGenerated"
	SourceStaticFallback Source = "StaticFallback"
)

// Sources lists the tiers in priority order
var Sources = []Source{SourceLocalBank, SourceAIGenerated, SourceStaticFallback}

// Exam codes
const (
	ExamRI = "RI"
	ExamAI = "AI"
)

// Language tags
const (
	LanguageEnglish = "en"
	LanguageOdia    = "or"
)

// OptionCount is the number of answer options every question carries
const OptionCount = 4

// Question is a single multiple choice question. Values handed out by the
// bank are copies, so callers may tag or reorder them freely.
type Question struct {
	ID                 string     `json:"id" yaml:"id"`
	QuestionText       string     `json:"question" yaml:"question"`
	Options            []string   `json:"options" yaml:"options"`
	CorrectOptionIndex int        `json:"correct_option_index" yaml:"correct_option_index"`
	Explanation        string     `json:"explanation" yaml:"explanation"`
	Subject            string     `json:"subject" yaml:"subject"`
	Topic              string     `json:"topic" yaml:"topic"`
	Subtopic           string     `json:"subtopic,omitempty" yaml:"subtopic"`
	Difficulty         Difficulty `json:"difficulty" yaml:"difficulty"`
	Source             Source     `json:"source" yaml:"source"`
	Language           string     `json:"language" yaml:"language"`
	Exam               string     `json:"exam,omitempty" yaml:"exam"`
	GeneratedAt        time.Time  `json:"generated_at,omitzero" yaml:"generated_at"`
}

// Validate checks the shape invariant: non-empty text, exactly four options
// and an answer index inside them.
func (q *Question) Validate() error {
	if q == nil {
		return contextutils.WrapError(contextutils.ErrValidationFailed, "question is nil")
	}
	if strings.TrimSpace(q.ID) == "" {
		return contextutils.WrapError(contextutils.ErrValidationFailed, "question id is empty")
	}
	if strings.TrimSpace(q.QuestionText) == "" {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "question %s has no text", q.ID)
	}
	if len(q.Options) != OptionCount {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "question %s has %d options", q.ID, len(q.Options))
	}
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= OptionCount {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "question %s has answer index %d", q.ID, q.CorrectOptionIndex)
	}
	return nil
}

// CorrectAnswer returns the text of the correct option.
func (q *Question) CorrectAnswer() string {
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectOptionIndex]
}

// Clone returns a deep copy of q
func (q *Question) Clone() *Question {
	c := *q
	c.Options = append([]string(nil), q.Options...)
	return &c
}

// OptionLetter maps an option index to A..D.
func OptionLetter(i int) string {
	if i < 0 || i >= OptionCount {
		return ""
	}
	return string(rune('A' + i))
}

// CountBySource tallies questions per provenance tag
func CountBySource(questions []*Question) map[Source]int {
	counts := make(map[Source]int, len(Sources))
	for _, q := range questions {
		counts[q.Source]++
	}
	return counts
}

// GenerationRequest is what the AI tier is asked to produce
type GenerationRequest struct {
	Exam        string     `json:"exam"`
	SubjectName string     `json:"subject_name"`
	TopicName   string     `json:"topic_name"`
	Subtopics   []string   `json:"subtopics,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	Count       int        `json:"count"`
	Language    string     `json:"language"`
}

// MaxQuestionsPerRequest bounds SourcingRequest.Count
const MaxQuestionsPerRequest = 200

// SourcingRequest asks the sourcing service for Count questions.
// SubjectID may be a syllabus subject id or a display name, and
// SyllabusTopic may be a syllabus topic id, display name or bank label.
type SourcingRequest struct {
	Exam          string     `json:"exam" validate:"omitempty,oneof=RI AI"`
	SubjectID     string     `json:"subject_id"`
	SyllabusTopic string     `json:"syllabus_topic"`
	Difficulty    Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Count         int        `json:"count" validate:"min=1,max=200"`
	Language      string     `json:"language" validate:"omitempty,oneof=en or"`
	LearnerID     string     `json:"learner_id,omitempty"`
	ExcludeIDs    []string   `json:"exclude_ids,omitempty"`
}

// Normalize upper-cases the exam, lower-cases difficulty and language and
// fills the RI and English defaults.
func (r *SourcingRequest) Normalize() {
	r.Exam = strings.ToUpper(strings.TrimSpace(r.Exam))
	if r.Exam == "" {
		r.Exam = ExamRI
	}
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = LanguageEnglish
	}
	r.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(r.Difficulty))))
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.SyllabusTopic = strings.TrimSpace(r.SyllabusTopic)
}

// Validate normalizes the request and checks its tags.
func (r *SourcingRequest) Validate() error {
	r.Normalize()
	return contextutils.ValidateStruct(r)
}

// String is used in log lines
func (r SourcingRequest) String() string {
	return fmt.Sprintf("%s/%s/%s/%s x%d", r.Exam, r.SubjectID, r.SyllabusTopic, r.Difficulty, r.Count)
}

// BankStats summarises the corpus for dashboards. ByTopic keys are
// "Subject > Topic".
type BankStats struct {
	Total        int                `json:"total"`
	Used         int                `json:"used"`
	Available    int                `json:"available"`
	BySubject    map[string]int     `json:"by_subject"`
	ByTopic      map[string]int     `json:"by_topic"`
	ByDifficulty map[Difficulty]int `json:"by_difficulty"`
}

// TopicAvailability is one row of a subject's topic listing
type TopicAvailability struct {
	Topic     string `json:"topic"`
	Count     int    `json:"count"`
	Available int    `json:"available"`
}

// Sourcing event kinds
const (
	EventKindQuestions = "questions"
	EventKindBatch     = "batch"
	EventKindMockTest  = "mock_test"
	EventKindDailyTest = "daily_test"
	EventKindGenerate  = "generate"
)

// SourcingEvent is recorded once per sourcing call for later analysis.
type SourcingEvent struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	LearnerID string         `json:"learner_id,omitempty"`
	Exam      string         `json:"exam"`
	Subject   string         `json:"subject"`
	Topic     string         `json:"topic"`
	Requested int            `json:"requested"`
	BySource  map[Source]int `json:"by_source"`
	Duration  time.Duration  `json:"duration"`
	At        time.Time      `json:"at"`
}

// Degraded reports whether anything other than the bank served the call
func (e SourcingEvent) Degraded() bool {
	for src, n := range e.BySource {
		if src != SourceLocalBank && n > 0 {
			return true
		}
	}
	return false
}

// MockTest is a full-length practice paper
type MockTest struct {
	Exam            string         `json:"exam"`
	Questions       []*Question    `json:"questions"`
	DurationMinutes int            `json:"duration_minutes"`
	TotalMarks      int            `json:"total_marks"`
	NegativeMarking float64        `json:"negative_marking"`
	BySource        map[Source]int `json:"by_source"`
}

// DailyTest is the short daily practice set
type DailyTest struct {
	Exam       string         `json:"exam"`
	Date       string         `json:"date"`
	Subject    string         `json:"subject"`
	WeakTopics []string       `json:"weak_topics,omitempty"`
	Questions  []*Question    `json:"questions"`
	BySource   map[Source]int `json:"by_source"`
}

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a tutor conversation or a provider prompt
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}
