package services

import (
	"embed"
	"strings"
	"text/template"

	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"
)

//go:embed templates/*.tmpl
var promptTemplatesFS embed.FS

// Template names as constants
const (
	GenerationSystemTemplate = "generation_system.tmpl"
	GenerationUserTemplate   = "generation_user.tmpl"
	TutorSystemTemplate      = "tutor_system.tmpl"
	ExplainSystemTemplate    = "explain_system.tmpl"
	ExplainUserTemplate      = "explain_user.tmpl"
	TranslateSystemTemplate  = "translate_system.tmpl"
)

// tutorHistoryLimit is how many earlier turns are sent with a chat message
const tutorHistoryLimit = 10

// PromptData holds the values rendered into prompt templates
type PromptData struct {
	Exam       string
	ExamName   string
	Subject    string
	Topic      string
	Subtopics  []string
	Difficulty string
	Count      int
	Language   string

	// Explanation
	Question      string
	CorrectAnswer string
	Options       []string

	// Translation
	SourceLanguage string
	TargetLanguage string
}

// PromptBuilder renders the embedded prompt templates into chat messages
type PromptBuilder struct {
	templates *template.Template
}

// NewPromptBuilder parses the embedded templates
func NewPromptBuilder() (result0 *PromptBuilder, err error) {
	funcs := template.FuncMap{
		"join":   strings.Join,
		"letter": models.OptionLetter,
	}
	templates, err := template.New("").Funcs(funcs).ParseFS(promptTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to parse prompt templates")
	}
	return &PromptBuilder{templates: templates}, nil
}

// MustPromptBuilder is NewPromptBuilder for package initialisation and tests
func MustPromptBuilder() *PromptBuilder {
	pb, err := NewPromptBuilder()
	if err != nil {
		panic(err)
	}
	return pb
}

// Render executes one template
func (pb *PromptBuilder) Render(name string, data PromptData) (string, error) {
	var buf strings.Builder
	if err := pb.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", contextutils.WrapErrorf(err, "failed to render %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ExamDisplayName expands an exam code for prompts
func ExamDisplayName(exam string) string {
	if strings.EqualFold(exam, models.ExamAI) {
		return "Assistant Inspector (AI)"
	}
	return "Revenue Inspector (RI)"
}

// GenerationMessages builds the system and user prompt for a question batch
func (pb *PromptBuilder) GenerationMessages(req models.GenerationRequest) ([]models.ChatMessage, error) {
	difficulty := string(req.Difficulty)
	if difficulty == "" {
		difficulty = string(models.DifficultyMedium)
	}
	data := PromptData{
		Exam:       req.Exam,
		ExamName:   ExamDisplayName(req.Exam),
		Subject:    req.SubjectName,
		Topic:      req.TopicName,
		Subtopics:  req.Subtopics,
		Difficulty: difficulty,
		Count:      req.Count,
		Language:   req.Language,
	}
	if data.Topic == "" {
		data.Topic = "Any topic from the subject"
	}
	return pb.systemAndUser(GenerationSystemTemplate, GenerationUserTemplate, data)
}

// TutorMessages builds a chat transcript: the tutor system prompt, the
// last few user and assistant turns of history, then the new message.
func (pb *PromptBuilder) TutorMessages(exam, language string, history []models.ChatMessage, message string) ([]models.ChatMessage, error) {
	system, err := pb.Render(TutorSystemTemplate, PromptData{
		Exam:     exam,
		ExamName: ExamDisplayName(exam),
		Language: language,
	})
	if err != nil {
		return nil, err
	}

	var kept []models.ChatMessage
	for _, m := range history {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			kept = append(kept, m)
		}
	}
	if len(kept) > tutorHistoryLimit {
		kept = kept[len(kept)-tutorHistoryLimit:]
	}

	messages := make([]models.ChatMessage, 0, len(kept)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: system})
	messages = append(messages, kept...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: message})
	return messages, nil
}

// ExplainMessages asks why correctAnswer answers question
func (pb *PromptBuilder) ExplainMessages(question, correctAnswer string, options []string, language string) ([]models.ChatMessage, error) {
	return pb.systemAndUser(ExplainSystemTemplate, ExplainUserTemplate, PromptData{
		Question:      question,
		CorrectAnswer: correctAnswer,
		Options:       options,
		Language:      language,
	})
}

// TranslateMessages asks for text in the other language
func (pb *PromptBuilder) TranslateMessages(text, from, to string) ([]models.ChatMessage, error) {
	system, err := pb.Render(TranslateSystemTemplate, PromptData{
		SourceLanguage: languageName(from),
		TargetLanguage: languageName(to),
	})
	if err != nil {
		return nil, err
	}
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: text},
	}, nil
}

func (pb *PromptBuilder) systemAndUser(systemTmpl, userTmpl string, data PromptData) ([]models.ChatMessage, error) {
	system, err := pb.Render(systemTmpl, data)
	if err != nil {
		return nil, err
	}
	user, err := pb.Render(userTmpl, data)
	if err != nil {
		return nil, err
	}
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user},
	}, nil
}

func languageName(tag string) string {
	if tag == models.LanguageOdia {
		return "Odia (ଓଡ଼ିଆ)"
	}
	return "English"
}
