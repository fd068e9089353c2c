package commands

import (
	"fmt"
	"text/tabwriter"

	"osscprep/internal/models"

	"github.com/spf13/cobra"
)

// QuestionCommands returns the question sourcing commands
func QuestionCommands(env *Env) *cobra.Command {
	questionsCmd := &cobra.Command{
		Use:   "questions",
		Short: "Source questions the way the API does",
	}
	questionsCmd.AddCommand(getQuestionsCmd(env))
	return questionsCmd
}

func getQuestionsCmd(env *Env) *cobra.Command {
	var (
		req        models.SourcingRequest
		difficulty string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch a question set for a subject and syllabus topic",
		Long: `Fetch a question set through the full sourcing pipeline.

The local bank is tried first, then AI generation when a provider is
configured, then the static fallback bank. The exact requested count is
always returned.`,
		Example: `  adm questions get --subject "Quantitative Aptitude" --topic ri-quant-time-distance --count 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req.Difficulty = models.Difficulty(difficulty)

			sc, err := env.container(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown(ctx) }()

			sourcing, err := sc.GetSourcingService()
			if err != nil {
				return err
			}
			questions := sourcing.GetQuestions(ctx, req)

			if asJSON {
				return printJSON(cmd.OutOrStdout(), questions)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE\tTOPIC\tDIFFICULTY\tQUESTION")
			for _, q := range questions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", q.ID, q.Source, q.Topic, q.Difficulty, truncate(q.QuestionText, 60))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			by := models.CountBySource(questions)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d questions: bank=%d ai=%d static=%d\n", len(questions),
				by[models.SourceLocalBank], by[models.SourceAIGenerated], by[models.SourceStaticFallback])
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Exam, "exam", models.ExamRI, "Exam code")
	cmd.Flags().StringVar(&req.SubjectID, "subject", "", "Subject id or display name")
	cmd.Flags().StringVar(&req.SyllabusTopic, "topic", "", "Syllabus topic id or name")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "easy, medium or hard")
	cmd.Flags().IntVar(&req.Count, "count", 10, "Number of questions")
	cmd.Flags().StringVar(&req.Language, "language", models.LanguageEnglish, "en or or")
	cmd.Flags().StringVar(&req.LearnerID, "learner", "", "Learner whose usage set applies")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the questions as JSON")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
