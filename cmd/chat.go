package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cv-ranker/internal/ranking"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about the top ranked candidates",
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

		if err := chatLoop(ctx, cmd, a, result); err != nil {
			a.logger.Fatal("chat", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("text", "t", "", "job description text, instead of the job description document")
}

// chatLoop reads questions until an empty line, "exit" or Ctrl+D.
func chatLoop(ctx context.Context, cmd *cobra.Command, a *application, result *ranking.Result) error {
	if a.reasoner == nil {
		return errors.New("chat requires a configured ai provider")
	}
	if len(result.Candidates) == 0 {
		a.logger.Info("nothing to discuss", zap.String("reason", "no candidates found"))
		return nil
	}

	jd := a.jobDescriptionText()
	if text, _ := cmd.Flags().GetString("text"); text != "" {
		jd = text
	}
	advisor := ranking.NewAdvisor(a.reasoner, jd, ranking.DefaultAdvisorTemperature, a.logger)

	timeout := a.config.AI.Timeout
	if timeout <= 0 {
		timeout = ranking.DefaultTimeout
	}

	var history []ranking.Turn
	for {
		question := promptui.Prompt{Label: "Question (empty to go back)"}

		q, err := question.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			return err
		}

		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, "exit") {
			return nil
		}

		askCtx, cancel := context.WithTimeout(ctx, timeout)
		answer, err := advisor.Ask(askCtx, q, result.Candidates, history...)
		cancel()
		if err != nil {
			a.logger.Warn("no answer", zap.Error(err))
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", answer)
		history = append(history, ranking.Turn{Question: q, Answer: answer})
	}
}
