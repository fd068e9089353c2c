package bank

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"
)

//go:embed data/sample_corpus.json
var sampleCorpusJSON []byte

// Corpus is the read-only set of pre-generated questions
type Corpus struct {
	questions []*models.Question
	byID      map[string]*models.Question
	rejected  int
}

type rawQuestion struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	Topic         string          `json:"topic"`
	Subtopic      string          `json:"subtopic"`
	Difficulty    string          `json:"difficulty"`
	Question      string          `json:"question"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
	Language      string          `json:"language"`
	GeneratedAt   string          `json:"generatedAt"`
}

// LoadCorpus decodes a corpus document. The document is either an array of
// records or an object with a "questions" array. Options may be an {A..D}
// object or an array, and correctAnswer a letter or an index. Records
// without an id or question text, or repeating an earlier id, are skipped
// and counted in Rejected.
func LoadCorpus(r io.Reader) (*Corpus, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to read corpus: %v", err)
	}

	var records []rawQuestion
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var doc struct {
			Questions []rawQuestion `json:"questions"`
		}
		err = json.Unmarshal(trimmed, &doc)
		records = doc.Questions
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to decode corpus: %v", err)
	}

	c := &Corpus{byID: make(map[string]*models.Question, len(records))}
	for _, rec := range records {
		q, ok := rec.toQuestion()
		if !ok {
			c.rejected++
			continue
		}
		if _, dup := c.byID[q.ID]; dup {
			c.rejected++
			continue
		}
		c.questions = append(c.questions, q)
		c.byID[q.ID] = q
	}
	return c, nil
}

// DefaultCorpus returns the embedded sample corpus.
func DefaultCorpus() (*Corpus, error) {
	return LoadCorpus(bytes.NewReader(sampleCorpusJSON))
}

func (rec rawQuestion) toQuestion() (*models.Question, bool) {
	id := strings.TrimSpace(rec.ID)
	text := strings.TrimSpace(rec.Question)
	if id == "" || text == "" {
		return nil, false
	}

	difficulty, ok := models.ParseDifficulty(rec.Difficulty)
	if !ok {
		difficulty = models.DifficultyMedium
	}
	language := rec.Language
	if language == "" {
		language = models.LanguageEnglish
	}

	q := &models.Question{
		ID:                 id,
		QuestionText:       text,
		Options:            decodeOptions(rec.Options),
		CorrectOptionIndex: decodeAnswer(rec.CorrectAnswer),
		Explanation:        rec.Explanation,
		Subject:            strings.TrimSpace(rec.Subject),
		Topic:              strings.TrimSpace(rec.Topic),
		Subtopic:           rec.Subtopic,
		Difficulty:         difficulty,
		Source:             models.SourceLocalBank,
		Language:           language,
	}
	if ts, err := time.Parse(time.RFC3339, rec.GeneratedAt); err == nil {
		q.GeneratedAt = ts
	}
	return q, true
}

// decodeOptions always returns exactly four entries, padding with "".
func decodeOptions(raw json.RawMessage) []string {
	opts := make([]string, models.OptionCount)

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		copy(opts, list)
		return opts
	}

	var byLetter map[string]string
	if err := json.Unmarshal(raw, &byLetter); err == nil {
		for letter, text := range byLetter {
			if idx := letterIndex(letter); idx >= 0 {
				opts[idx] = text
			}
		}
	}
	return opts
}

// decodeAnswer maps a letter or an index to 0..3. Anything else yields 0.
func decodeAnswer(raw json.RawMessage) int {
	var letter string
	if err := json.Unmarshal(raw, &letter); err == nil {
		if idx := letterIndex(letter); idx >= 0 {
			return idx
		}
		if n, err := strconv.Atoi(strings.TrimSpace(letter)); err == nil && n >= 0 && n < models.OptionCount {
			return n
		}
		return 0
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n >= 0 && n < models.OptionCount {
		return n
	}
	return 0
}

func letterIndex(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'D' {
		return -1
	}
	return int(s[0] - 'A')
}

// Len returns the number of accepted questions
func (c *Corpus) Len() int { return len(c.questions) }

// Rejected returns the number of records dropped while loading
func (c *Corpus) Rejected() int { return c.rejected }

// Get returns the question with the given id
func (c *Corpus) Get(id string) (*models.Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// All returns the questions in load order. The slice must not be modified.
func (c *Corpus) All() []*models.Question { return c.questions }

// Merge returns a corpus holding c's questions followed by those of others.
// Questions whose id is already present are dropped and counted as rejected.
func (c *Corpus) Merge(others ...*Corpus) *Corpus {
	merged := &Corpus{
		questions: append([]*models.Question(nil), c.questions...),
		byID:      make(map[string]*models.Question, len(c.byID)),
		rejected:  c.rejected,
	}
	for id, q := range c.byID {
		merged.byID[id] = q
	}
	for _, o := range others {
		merged.rejected += o.rejected
		for _, q := range o.questions {
			if _, dup := merged.byID[q.ID]; dup {
				merged.rejected++
				continue
			}
			merged.questions = append(merged.questions, q)
			merged.byID[q.ID] = q
		}
	}
	return merged
}

// WriteCorpus writes questions in the corpus document format read by
// LoadCorpus, with lettered answers and array options.
func WriteCorpus(w io.Writer, questions []*models.Question) error {
	records := make([]map[string]interface{}, 0, len(questions))
	for _, q := range questions {
		rec := map[string]interface{}{
			"id":            q.ID,
			"subject":       q.Subject,
			"topic":         q.Topic,
			"difficulty":    string(q.Difficulty),
			"question":      q.QuestionText,
			"options":       q.Options,
			"correctAnswer": models.OptionLetter(q.CorrectOptionIndex),
			"explanation":   q.Explanation,
			"language":      q.Language,
		}
		if q.Subtopic != "" {
			rec["subtopic"] = q.Subtopic
		}
		if !q.GeneratedAt.IsZero() {
			rec["generatedAt"] = q.GeneratedAt.UTC().Format(time.RFC3339)
		}
		records = append(records, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]interface{}{"questions": records}); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to encode corpus: %v", err)
	}
	return nil
}
