// Package topics resolves syllabus topics to the topic labels used in the
// question bank and exposes the exam syllabi.
package topics

import (
	"bytes"
	_ "embed"
	"regexp"
	"slices"
	"strings"

	contextutils "osscprep/internal/utils"

	"gopkg.in/yaml.v3"
)

//go:embed data/aliases.yaml
var aliasesYAML []byte

//go:embed data/syllabus.yaml
var syllabusYAML []byte

var examPrefix = regexp.MustCompile(`^(ri|ai)-`)

// subjectVariations maps lower-cased spellings seen in corpora and requests
// to the canonical subject name.
var subjectVariations = map[string]string{
	"reasoning & mental ability":   "Reasoning & Mental Ability",
	"reasoning and mental ability": "Reasoning & Mental Ability",
	"reasoning":                    "Reasoning & Mental Ability",
	"quantitative aptitude":        "Quantitative Aptitude",
	"quantitative":                 "Quantitative Aptitude",
	"english language":             "English Language",
	"english":                      "English Language",
	"general knowledge":            "General Knowledge",
	"gk":                           "General Knowledge",
	"odisha gk":                    "Odisha GK",
	"odia language":                "Odia Language",
	"odia":                         "Odia Language",
}

type aliasFile struct {
	Aliases      map[string][]string `yaml:"aliases"`
	SubjectNames map[string]string   `yaml:"subject_names"`
}

// Resolver maps syllabus topics and subject identifiers onto bank labels.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	aliases      map[string][]string
	subjectNames map[string]string
	syllabi      map[string]*Syllabus
}

// NewResolver builds a resolver from an alias table and the syllabi it
// should know about, keyed by exam code.
func NewResolver(aliases map[string][]string, subjectNames map[string]string, syllabi ...*Syllabus) *Resolver {
	r := &Resolver{
		aliases:      make(map[string][]string, len(aliases)),
		subjectNames: make(map[string]string, len(subjectNames)),
		syllabi:      make(map[string]*Syllabus, len(syllabi)),
	}
	for k, v := range aliases {
		r.aliases[k] = append([]string{}, v...)
	}
	for k, v := range subjectNames {
		r.subjectNames[k] = v
	}
	for _, s := range syllabi {
		r.syllabi[strings.ToUpper(s.ExamCode)] = s
	}
	return r
}

// NewDefaultResolver loads the embedded alias table and RI syllabus and
// derives the AI syllabus from it.
func NewDefaultResolver() (*Resolver, error) {
	var af aliasFile
	if err := yaml.Unmarshal(aliasesYAML, &af); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to decode alias table: %v", err)
	}
	ri, err := LoadSyllabus(bytes.NewReader(syllabusYAML))
	if err != nil {
		return nil, err
	}
	ai := ri.Derive("AI", "Assistant Inspector (AI)")
	return NewResolver(af.Aliases, af.SubjectNames, ri, ai), nil
}

// Resolve returns the bank topic labels to search for syllabusTopic, most
// specific first. Lookup tries the alias table, then the table again with an
// ri-/ai- prefix removed, and finally treats the input as a bank label. A
// topic whose alias entry is empty resolves to nothing. The alias table is
// shared by all subjects, so the subject hint does not narrow it.
func (r *Resolver) Resolve(_, syllabusTopic string) []string {
	syllabusTopic = strings.TrimSpace(syllabusTopic)
	if syllabusTopic == "" {
		return nil
	}
	if key, ok := r.aliasKey(syllabusTopic); ok {
		return append([]string{}, r.aliases[key]...)
	}
	return []string{syllabusTopic}
}

func (r *Resolver) aliasKey(syllabusTopic string) (string, bool) {
	if _, ok := r.aliases[syllabusTopic]; ok {
		return syllabusTopic, true
	}
	stripped := examPrefix.ReplaceAllString(syllabusTopic, "")
	if _, ok := r.aliases[stripped]; ok && stripped != syllabusTopic {
		return stripped, true
	}
	return "", false
}

// Canonical returns the most readable name that resolves to the same bank
// labels as syllabusTopic: the syllabus display name where one exists,
// otherwise the alias key, otherwise the input.
func (r *Resolver) Canonical(syllabusTopic string) string {
	syllabusTopic = strings.TrimSpace(syllabusTopic)
	key, ok := r.aliasKey(syllabusTopic)
	if !ok {
		return syllabusTopic
	}
	if ref, found := r.topicByAnyID(key); found && ref.Name != key {
		if slices.Equal(r.Resolve("", ref.Name), r.aliases[key]) {
			return ref.Name
		}
	}
	return key
}

func (r *Resolver) topicByAnyID(id string) (TopicRef, bool) {
	for _, s := range r.syllabi {
		if ref, ok := s.TopicByID(id); ok {
			return ref, true
		}
	}
	return TopicRef{}, false
}

// MatchesLabel reports whether a bank label matches any of targets, ignoring
// case and accepting containment in either direction.
func MatchesLabel(label string, targets []string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return false
	}
	for _, target := range targets {
		t := strings.ToLower(strings.TrimSpace(target))
		if t == "" {
			continue
		}
		if l == t || strings.Contains(l, t) || strings.Contains(t, l) {
			return true
		}
	}
	return false
}

// SubjectName returns the display name for a subject id, or the id itself.
func (r *Resolver) SubjectName(subjectID string) string {
	if name, ok := r.subjectNames[subjectID]; ok {
		return name
	}
	return subjectID
}

// NormalizeSubject maps subject ids and common spellings to the canonical
// subject name. Unknown values are returned trimmed but otherwise unchanged.
func (r *Resolver) NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ""
	}
	if name, ok := r.subjectNames[subject]; ok {
		return name
	}
	if name, ok := subjectVariations[strings.ToLower(subject)]; ok {
		return name
	}
	return subject
}

// SubjectMatches reports whether two subject strings refer to the same
// subject. An empty side matches everything.
func (r *Resolver) SubjectMatches(a, b string) bool {
	na := strings.ToLower(r.NormalizeSubject(a))
	nb := strings.ToLower(r.NormalizeSubject(b))
	if na == "" || nb == "" {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// Syllabus returns the syllabus for an exam code
func (r *Resolver) Syllabus(exam string) (*Syllabus, bool) {
	s, ok := r.syllabi[strings.ToUpper(strings.TrimSpace(exam))]
	return s, ok
}

// Exams lists the known exam codes in sorted order
func (r *Resolver) Exams() []string {
	codes := make([]string, 0, len(r.syllabi))
	for code := range r.syllabi {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// DescribeTopic resolves a syllabus topic id to its display name, subject
// name and subtopics for prompt building. Unknown ids are returned as is.
func (r *Resolver) DescribeTopic(exam, topicID string) TopicRef {
	if s, ok := r.Syllabus(exam); ok {
		if ref, found := s.TopicByID(topicID); found {
			return ref
		}
	}
	if ref, found := r.topicByAnyID(topicID); found {
		return ref
	}
	return TopicRef{Topic: Topic{ID: topicID, Name: topicID}}
}
