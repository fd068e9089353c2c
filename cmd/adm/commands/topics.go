package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// TopicCommands returns the topic resolution commands
func TopicCommands(env *Env) *cobra.Command {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Inspect how syllabus topics map onto the bank",
	}
	topicsCmd.AddCommand(resolveTopicCmd(env))
	topicsCmd.AddCommand(listTopicsCmd(env))
	return topicsCmd
}

func resolveTopicCmd(env *Env) *cobra.Command {
	var subject, topic string
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "resolve",
		Short:   "Show the bank topic labels a syllabus topic resolves to",
		Example: `  adm topics resolve --subject ri-quantitative --topic ri-quant-time-distance`,
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
			res := sourcing.ResolveTopic(subject, topic)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "subject:   %s\ncanonical: %s\n", res.Subject, res.Canonical)
			if len(res.BankTopics) == 0 {
				fmt.Fprintln(out, "no bank topics, requests will use AI or the static bank")
				return nil
			}
			for _, label := range res.BankTopics {
				fmt.Fprintf(out, "  %-40s %d\n", label, res.Counts[label])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject id or display name")
	cmd.Flags().StringVar(&topic, "topic", "", "Syllabus topic id or name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func listTopicsCmd(env *Env) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the bank topics of a subject",
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
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tCOUNT")
			for _, t := range sourcing.TopicsForSubject(ctx, strings.TrimSpace(subject), "") {
				fmt.Fprintf(w, "%s\t%d\n", t.Topic, t.Count)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject id or display name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
