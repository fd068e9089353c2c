package bank

import (
	"encoding/json"
	"io"
	"sort"

	contextutils "osscprep/internal/utils"
)

// TopicEntry lists the questions filed under one bank topic
type TopicEntry struct {
	Count       int      `json:"count"`
	QuestionIDs []string `json:"questionIds"`
}

// TopicMapping indexes the corpus as subject -> topic -> entry
type TopicMapping map[string]map[string]TopicEntry

// BuildTopicMapping indexes every question by its subject and topic label.
func BuildTopicMapping(c *Corpus) TopicMapping {
	m := make(TopicMapping)
	for _, q := range c.All() {
		topics, ok := m[q.Subject]
		if !ok {
			topics = make(map[string]TopicEntry)
			m[q.Subject] = topics
		}
		entry := topics[q.Topic]
		entry.QuestionIDs = append(entry.QuestionIDs, q.ID)
		entry.Count = len(entry.QuestionIDs)
		topics[q.Topic] = entry
	}
	return m
}

// LoadTopicMapping decodes a mapping written by WriteJSON. Counts are
// recomputed from the id lists.
func LoadTopicMapping(r io.Reader) (TopicMapping, error) {
	var m TopicMapping
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to decode topic mapping: %v", err)
	}
	for subject, topics := range m {
		for topic, entry := range topics {
			entry.Count = len(entry.QuestionIDs)
			m[subject][topic] = entry
		}
	}
	return m, nil
}

// WriteJSON writes the mapping as indented JSON
func (m TopicMapping) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(m)
}

// Subjects returns the subject names in sorted order
func (m TopicMapping) Subjects() []string {
	subjects := make([]string, 0, len(m))
	for s := range m {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects
}

// Topics returns a subject's topic labels in sorted order
func (m TopicMapping) Topics(subject string) []string {
	topics := make([]string, 0, len(m[subject]))
	for t := range m[subject] {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// TotalQuestions sums the counts of every topic
func (m TopicMapping) TotalQuestions() int {
	total := 0
	for _, topics := range m {
		for _, entry := range topics {
			total += entry.Count
		}
	}
	return total
}
