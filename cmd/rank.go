package cmd

import (
	"context"

	"github.com/spigell/cv-ranker/internal/ranking"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank indexed CVs against the job description",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		a := mustApplication(ctx)

		if err := a.initialize(ctx); err != nil {
			a.logger.Fatal("initializing the index", zap.Error(err))
		}

		result, err := rankFromFlags(ctx, cmd, a)
		if err != nil {
			a.logger.Fatal("ranking", zap.Error(err))
		}

		format, _ := cmd.Flags().GetString("output")
		if err := printRanking(cmd.OutOrStdout(), result, format); err != nil {
			a.logger.Fatal("printing ranking", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().StringP("text", "t", "", "job description text, instead of the job description document")
	rankCmd.Flags().StringP("output", "o", formatTable, "output format: table, json or yaml")
}

func rankFromFlags(ctx context.Context, cmd *cobra.Command, a *application) (*ranking.Result, error) {
	if text, _ := cmd.Flags().GetString("text"); text != "" {
		return a.engine.Rank(ctx, text)
	}
	return a.rank(ctx)
}
