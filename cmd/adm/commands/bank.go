package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"osscprep/internal/bank"
	contextutils "osscprep/internal/utils"
	"osscprep/internal/worker"

	"github.com/spf13/cobra"
)

// BankCommands returns the question bank commands
func BankCommands(env *Env) *cobra.Command {
	bankCmd := &cobra.Command{
		Use:   "bank",
		Short: "Question bank maintenance",
	}
	bankCmd.AddCommand(bankStatsCmd(env))
	bankCmd.AddCommand(bankAnalyzeCmd(env))
	bankCmd.AddCommand(bankGrowCmd(env))
	return bankCmd
}

func bankStatsCmd(env *Env) *cobra.Command {
	var learner string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sc, err := env.container(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown(ctx) }()

			sourcing, err := sc.GetSourcingService()
			if err != nil {
				return err
			}
			stats := sourcing.GetStats(ctx, learner)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "total\t%d\nused\t%d\navailable\t%d\n\n", stats.Total, stats.Used, stats.Available)
			fmt.Fprintln(w, "SUBJECT\tQUESTIONS")
			subjects := make([]string, 0, len(stats.BySubject))
			for s := range stats.BySubject {
				subjects = append(subjects, s)
			}
			sort.Strings(subjects)
			for _, s := range subjects {
				fmt.Fprintf(w, "%s\t%d\n", s, stats.BySubject[s])
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&learner, "learner", "", "Apply this learner's usage set")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func bankAnalyzeCmd(env *Env) *cobra.Command {
	var corpusPath, outPath string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build the subject/topic mapping of a corpus file",
		Long: `Read a question corpus and write the subject -> topic -> question ids
mapping used by the bank. Without --out the mapping is printed.`,
		Example: `  adm bank analyze --corpus data/questions.json --out data/topic_mapping.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			corpus, err := bank.OpenCorpus(corpusPath)
			if err != nil {
				return err
			}
			mapping := bank.BuildTopicMapping(corpus)

			if outPath == "" {
				return mapping.WriteJSON(cmd.OutOrStdout())
			}
			f, err := os.Create(outPath)
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to create %s: %v", outPath, err)
			}
			if err := mapping.WriteJSON(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			env.Logger.Info(cmd.Context(), "Topic mapping written", map[string]interface{}{"path": outPath})
			fmt.Fprintf(cmd.OutOrStdout(), "%d questions (%d rejected) across %d subjects written to %s\n",
				corpus.Len(), corpus.Rejected(), len(mapping.Subjects()), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Corpus JSON file (default: built-in sample)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the mapping to this file")
	return cmd
}

func bankGrowCmd(env *Env) *cobra.Command {
	var outPath string
	var target, maxQuestions int

	cmd := &cobra.Command{
		Use:   "grow",
		Short: "Run one corpus growth pass",
		Long: `Generate AI questions for syllabus topics whose bank coverage is below
the target and append them to the generated corpus file. This is the pass
the worker runs on its schedule.`,
		Example: `  adm bank grow --target 20 --max 60 --out data/generated_questions.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if outPath != "" {
				env.Config.Worker.OutputPath = outPath
			}
			if target > 0 {
				env.Config.Worker.TargetPerTopic = target
			}
			if maxQuestions > 0 {
				env.Config.Worker.MaxPerRun = maxQuestions
			}

			sc, err := env.container(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown(ctx) }()

			sourcing, err := sc.GetSourcingService()
			if err != nil {
				return err
			}
			w, err := worker.NewWorker(sourcing, sourcing.Resolver(), env.Config, env.Logger)
			if err != nil {
				return err
			}
			record, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", record.Status, record.Details, env.Config.Worker.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Generated corpus file (default: worker.output_path)")
	cmd.Flags().IntVar(&target, "target", 0, "Questions wanted per topic (default: worker.target_per_topic)")
	cmd.Flags().IntVar(&maxQuestions, "max", 0, "Most questions to generate in this pass (default: worker.max_per_run)")
	return cmd
}
