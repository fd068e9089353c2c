package topics

import (
	"io"
	"strings"

	contextutils "osscprep/internal/utils"

	"gopkg.in/yaml.v3"
)

// DifficultyMix is the percentage split of questions per band for a topic
type DifficultyMix struct {
	Easy   int `yaml:"easy" json:"easy"`
	Medium int `yaml:"medium" json:"medium"`
	Hard   int `yaml:"hard" json:"hard"`
}

// Topic is one syllabus topic
type Topic struct {
	ID         string        `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	NameOdia   string        `yaml:"name_odia" json:"name_odia"`
	Subtopics  []string      `yaml:"subtopics" json:"subtopics"`
	Difficulty DifficultyMix `yaml:"difficulty" json:"difficulty"`
}

// Subject groups topics and carries the subject's share of the paper
type Subject struct {
	ID            string  `yaml:"id" json:"id"`
	Name          string  `yaml:"name" json:"name"`
	NameOdia      string  `yaml:"name_odia" json:"name_odia"`
	Weightage     int     `yaml:"weightage" json:"weightage"`
	QuestionCount int     `yaml:"question_count" json:"question_count"`
	Topics        []Topic `yaml:"topics" json:"topics"`
}

// Syllabus describes one exam paper
type Syllabus struct {
	ExamName        string    `yaml:"exam_name" json:"exam_name"`
	ExamCode        string    `yaml:"exam_code" json:"exam_code"`
	TotalMarks      int       `yaml:"total_marks" json:"total_marks"`
	TotalQuestions  int       `yaml:"total_questions" json:"total_questions"`
	DurationMinutes int       `yaml:"duration_minutes" json:"duration_minutes"`
	NegativeMarking float64   `yaml:"negative_marking" json:"negative_marking"`
	Subjects        []Subject `yaml:"subjects" json:"subjects"`
}

// TopicRef is a topic flattened together with its subject
type TopicRef struct {
	Topic
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
}

// LoadSyllabus decodes a syllabus document.
func LoadSyllabus(r io.Reader) (*Syllabus, error) {
	var s Syllabus
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to decode syllabus: %v", err)
	}
	if s.ExamCode == "" || len(s.Subjects) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "syllabus has no exam code or subjects")
	}
	return &s, nil
}

// Derive copies the syllabus for another exam that shares its subjects,
// rewriting every "<old>-" id prefix to "<new>-".
func (s *Syllabus) Derive(examCode, examName string) *Syllabus {
	from := strings.ToLower(s.ExamCode) + "-"
	to := strings.ToLower(examCode) + "-"

	out := *s
	out.ExamCode = examCode
	out.ExamName = examName
	out.Subjects = make([]Subject, len(s.Subjects))
	for i, subj := range s.Subjects {
		subj.ID = strings.Replace(subj.ID, from, to, 1)
		topics := make([]Topic, len(subj.Topics))
		for j, t := range subj.Topics {
			t.ID = strings.Replace(t.ID, from, to, 1)
			t.Subtopics = append([]string(nil), t.Subtopics...)
			topics[j] = t
		}
		subj.Topics = topics
		out.Subjects[i] = subj
	}
	return &out
}

// SubjectByID finds a subject by id
func (s *Syllabus) SubjectByID(id string) (*Subject, bool) {
	for i := range s.Subjects {
		if s.Subjects[i].ID == id {
			return &s.Subjects[i], true
		}
	}
	return nil, false
}

// SubjectByName finds a subject by name, ignoring case.
func (s *Syllabus) SubjectByName(name string) (*Subject, bool) {
	for i := range s.Subjects {
		if strings.EqualFold(s.Subjects[i].Name, name) {
			return &s.Subjects[i], true
		}
	}
	return nil, false
}

// TopicByID finds a topic by id anywhere in the syllabus
func (s *Syllabus) TopicByID(id string) (TopicRef, bool) {
	for _, subj := range s.Subjects {
		for _, t := range subj.Topics {
			if t.ID == id {
				return TopicRef{Topic: t, SubjectID: subj.ID, SubjectName: subj.Name}, true
			}
		}
	}
	return TopicRef{}, false
}

// AllTopics flattens the syllabus in document order
func (s *Syllabus) AllTopics() []TopicRef {
	var refs []TopicRef
	for _, subj := range s.Subjects {
		for _, t := range subj.Topics {
			refs = append(refs, TopicRef{Topic: t, SubjectID: subj.ID, SubjectName: subj.Name})
		}
	}
	return refs
}

// Validate checks that subject weightages add up to 100.
func (s *Syllabus) Validate() error {
	total := 0
	for _, subj := range s.Subjects {
		total += subj.Weightage
	}
	if total != 100 {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s weightage sums to %d", s.ExamCode, total)
	}
	return nil
}
