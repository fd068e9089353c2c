package services

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// Placeholders used when a model leaves a field out
const (
	PlaceholderQuestion    = "Question not available"
	PlaceholderExplanation = "No explanation available"
)

// GeneratedQuestionSchema is the shape every repaired record must satisfy
const GeneratedQuestionSchema = `{
	"type": "object",
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"options": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4},
		"correctOptionIndex": {"type": "integer", "minimum": 0, "maximum": 3},
		"explanation": {"type": "string"}
	},
	"required": ["question", "options", "correctOptionIndex", "explanation"]
}`

var (
	codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	thinkPattern     = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

var (
	questionKeys = []string{"question", "questionText", "question_text", "text"}
	answerKeys   = []string{"correctAnswer", "correct_answer", "correctOptionIndex", "correct_option_index", "answer"}
)

// GenerationResult is one question pulled out of model output. Parse only
// returns results that already satisfy the question shape invariant.
type GenerationResult struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Explanation        string   `json:"explanation"`
	Subtopic           string   `json:"subtopic,omitempty"`
}

// ParseResult is either a list of questions or an ErrUnparsableResponse
type ParseResult struct {
	Questions []GenerationResult
	Err       error
}

// Ok reports whether parsing produced a question list
func (r ParseResult) Ok() bool {
	return r.Err == nil
}

// ResponseParser turns free-form model output into repaired questions
type ResponseParser struct {
	schema *gojsonschema.Schema
}

// NewResponseParser compiles the question schema
func NewResponseParser() (*ResponseParser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(GeneratedQuestionSchema))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to compile question schema")
	}
	return &ResponseParser{schema: schema}, nil
}

// Parse takes the first JSON document in raw that holds questions, trying
// objects before arrays, and repairs each question in it. Missing text gets a placeholder, a broken option list becomes
// "Option A".."Option D" and an unusable answer key becomes 0.
func (p *ResponseParser) Parse(raw string) ParseResult {
	docs := jsonDocuments(raw)
	if len(docs) == 0 {
		return ParseResult{Err: contextutils.WrapError(contextutils.ErrUnparsableResponse, "no JSON object or array in model output")}
	}

	var candidates []map[string]interface{}
	for _, doc := range docs {
		if candidates = questionCandidates(doc); len(candidates) > 0 {
			break
		}
	}
	if len(candidates) == 0 {
		return ParseResult{Err: contextutils.WrapError(contextutils.ErrUnparsableResponse, "model output has no questions")}
	}

	results := make([]GenerationResult, 0, len(candidates))
	for _, c := range candidates {
		r := repairCandidate(c)
		if err := p.validate(r); err != nil {
			continue
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return ParseResult{Err: contextutils.WrapError(contextutils.ErrUnparsableResponse, "no question survived validation")}
	}
	return ParseResult{Questions: results}
}

func (p *ResponseParser) validate(r GenerationResult) error {
	res, err := p.schema.Validate(gojsonschema.NewGoLoader(r))
	if err != nil {
		return err
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ToQuestions tags parsed results with fresh ids and the request metadata
func ToQuestions(results []GenerationResult, req models.GenerationRequest, now time.Time) []*models.Question {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	language := req.Language
	if language == "" {
		language = models.LanguageEnglish
	}
	out := make([]*models.Question, 0, len(results))
	for _, r := range results {
		out = append(out, &models.Question{
			ID:                 "ai_" + uuid.NewString(),
			QuestionText:       r.Question,
			Options:            append([]string(nil), r.Options...),
			CorrectOptionIndex: r.CorrectOptionIndex,
			Explanation:        r.Explanation,
			Subject:            req.SubjectName,
			Topic:              req.TopicName,
			Subtopic:           r.Subtopic,
			Difficulty:         difficulty,
			Source:             models.SourceAIGenerated,
			Language:           language,
			Exam:               req.Exam,
			GeneratedAt:        now,
		})
	}
	return out
}

// jsonDocuments strips reasoning blocks and code fences, then decodes every
// top-level balanced JSON value in the text. Objects come first in text
// order, followed by arrays. Values nested inside a decoded one are not
// returned separately.
func jsonDocuments(raw string) []interface{} {
	text := thinkPattern.ReplaceAllString(raw, "")
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)

	var objects, arrays []interface{}
	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		span, ok := balancedSpan(text, i)
		if !ok {
			continue
		}
		var doc interface{}
		if err := json.Unmarshal([]byte(span), &doc); err != nil {
			continue
		}
		if open == '{' {
			objects = append(objects, doc)
		} else {
			arrays = append(arrays, doc)
		}
		i += len(span) - 1
	}
	return append(objects, arrays...)
}

// balancedSpan returns text[start:end] where end closes the bracket opened
// at start. Brackets inside string literals are ignored.
func balancedSpan(text string, start int) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// questionCandidates finds the question objects inside a decoded document
func questionCandidates(doc interface{}) []map[string]interface{} {
	var list []interface{}
	switch v := doc.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		if qs, ok := v["questions"].([]interface{}); ok {
			list = qs
		} else if _, single := v["question"]; single {
			list = []interface{}{v}
		}
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func repairCandidate(m map[string]interface{}) GenerationResult {
	r := GenerationResult{
		Question:    firstString(m, questionKeys...),
		Explanation: firstString(m, "explanation"),
		Subtopic:    firstString(m, "subtopic"),
	}
	if r.Question == "" {
		r.Question = PlaceholderQuestion
	}
	if r.Explanation == "" {
		r.Explanation = PlaceholderExplanation
	}

	r.Options = repairOptions(m["options"])
	r.CorrectOptionIndex = 0
	for _, key := range answerKeys {
		if v, ok := m[key]; ok && v != nil {
			r.CorrectOptionIndex = answerIndex(v, r.Options)
			break
		}
	}
	return r
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// PlaceholderOptions returns "Option A".."Option D"
func PlaceholderOptions() []string {
	opts := make([]string, models.OptionCount)
	for i := range opts {
		opts[i] = "Option " + models.OptionLetter(i)
	}
	return opts
}

// repairOptions accepts a four-element array or an {A,B,C,D} object
func repairOptions(v interface{}) []string {
	switch opts := v.(type) {
	case []interface{}:
		if len(opts) != models.OptionCount {
			return PlaceholderOptions()
		}
		out := make([]string, 0, models.OptionCount)
		for _, o := range opts {
			s := optionText(o)
			if s == "" {
				return PlaceholderOptions()
			}
			out = append(out, s)
		}
		return out
	case map[string]interface{}:
		byLetter := make(map[string]interface{}, len(opts))
		for k, o := range opts {
			byLetter[strings.ToUpper(strings.TrimSpace(k))] = o
		}
		out := make([]string, 0, models.OptionCount)
		for i := 0; i < models.OptionCount; i++ {
			s := optionText(byLetter[models.OptionLetter(i)])
			if s == "" {
				return PlaceholderOptions()
			}
			out = append(out, s)
		}
		return out
	default:
		return PlaceholderOptions()
	}
}

func optionText(v interface{}) string {
	switch o := v.(type) {
	case string:
		return strings.TrimSpace(o)
	case float64:
		return strconv.FormatFloat(o, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(o)
	default:
		return ""
	}
}

// answerIndex maps a letter, a number or the text of an option to 0..3.
// Anything else is 0.
func answerIndex(v interface{}, options []string) int {
	switch a := v.(type) {
	case float64:
		if a == math.Trunc(a) && a >= 0 && a < models.OptionCount {
			return int(a)
		}
		return 0
	case string:
		s := strings.TrimSpace(a)
		trimmed := strings.Trim(s, "()[]. :")
		if len(trimmed) == 1 {
			if c := strings.ToUpper(trimmed)[0]; c >= 'A' && c <= 'D' {
				return int(c - 'A')
			}
		}
		if lower := strings.ToLower(trimmed); strings.HasPrefix(lower, "option ") && len(lower) == len("option x") {
			if c := lower[len(lower)-1]; c >= 'a' && c <= 'd' {
				return int(c - 'a')
			}
		}
		if n, err := strconv.Atoi(trimmed); err == nil {
			if n >= 0 && n < models.OptionCount {
				return n
			}
			return 0
		}
		for i, o := range options {
			if strings.EqualFold(o, s) {
				return i
			}
		}
		return 0
	default:
		return 0
	}
}

// String is used in logs
func (r ParseResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("parse error: %v", r.Err)
	}
	return fmt.Sprintf("%d questions", len(r.Questions))
}
