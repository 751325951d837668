package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/logging"
)

// newResearchCmd creates the 'research' subcommand, which runs one full
// research workflow for the question given on the command line and prints the
// final answer.
func newResearchCmd() *cobra.Command {
	var (
		iterations int
		results    int
		salt       string
	)

	cmd := &cobra.Command{
		Use:   "research \"question\"",
		Short: "Runs a multi-iteration research workflow for a question",
		Long: `Plans diversified search queries for the question, then for each
iteration searches the web, scrapes the new results, and synthesizes an
intermediate answer. The final answer aggregates all iterations. Artifacts
for the run are written under the configured storage backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			question := strings.TrimSpace(args[0])
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}

			runCfg := appInstance.Config.RunConfig()
			if iterations > 0 {
				runCfg.Iterations = iterations
			}
			if results > 0 {
				runCfg.ResultsPerIteration = results
			}
			if salt != "" {
				runCfg.SlugSalt = salt
			}

			answer, runID, err := appInstance.Orchestrator.Run(cmd.Context(), question, runCfg)
			if err != nil {
				logging.WithRun(appInstance.Logger, runID).Error("research run failed", zap.Error(err))
				return fmt.Errorf("research run %s: %w", runID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Run: %s\n\n%s\n", runID, answer)
			return nil
		},
	}

	cmd.Flags().IntVar(&iterations, "iterations", 0, "number of research iterations (overrides config)")
	cmd.Flags().IntVar(&results, "results", 0, "search results per iteration (overrides config)")
	cmd.Flags().StringVar(&salt, "salt", "", "salt mixed into the run name for reproducible reruns")

	return cmd
}
