package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spigell/cv-ranker/internal/filtering"
	"github.com/spigell/cv-ranker/internal/ranking"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptShow       = "Show ranking"
	PromptChat       = "Ask about candidates"
	PromptRerank     = "Rank again"
	PromptManualDrop = "Remove candidates in manual mode"
	PromptDumpToFile = "Dump ranking to file"
	PromptExit       = "Exit"
	PromptBack       = "back"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShow, PromptChat, PromptRerank, PromptManualDrop, PromptDumpToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build or load the index, rank the CVs and explore the result interactively",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-aprove", "y", false, "print the ranking and exit without prompting")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	a, err := newApplication(ctx)
	if err != nil {
		fatal(err)
	}
	logger := a.logger

	if err := a.initialize(ctx); err != nil {
		logger.Fatal("initializing the index", zap.Error(err))
	}

	logger.Info("index ready", zap.Int("cvs", a.store.Len()))

	result, err := a.rank(ctx)
	if err != nil {
		logger.Fatal("ranking", zap.Error(err))
	}

	if len(result.Candidates) == 0 {
		logger.Info("exiting", zap.String("reason", "no candidates found"))
		return
	}

	if cmd.Flag("auto-aprove").Value.String() == "true" {
		if err := printRanking(cmd.OutOrStdout(), result, "table"); err != nil {
			logger.Fatal("printing ranking", zap.Error(err))
		}
		return
	}

	s := &session{app: a, result: result}
	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		logger.Info("current ranking", zap.Int("candidates", len(s.result.Candidates)), zap.Bool("fallback", s.result.Fallback))

		if err := s.handleAction(ctx, cmd, action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

// session is the state of one interactive run.
type session struct {
	app    *application
	result *ranking.Result
}

func (s *session) handleAction(ctx context.Context, cmd *cobra.Command, action string) error {
	logger := s.app.logger

	switch action {
	case PromptShow:
		return printRanking(cmd.OutOrStdout(), s.result, "table")
	case PromptChat:
		return chatLoop(ctx, cmd, s.app, s.result)
	case PromptRerank:
		result, err := s.app.rank(ctx)
		if err != nil {
			return err
		}
		s.result = result
		return printRanking(cmd.OutOrStdout(), s.result, "table")
	case PromptManualDrop:
		return s.manualRemove(ctx)
	case PromptDumpToFile:
		filename, err := dumpRanking(s.result)
		if err != nil {
			return fmt.Errorf("dump ranking to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// manualRemove lets the user pick ranked CVs to drop from the index. Dropped
// files are recorded in the exclude file when one is configured.
func (s *session) manualRemove(ctx context.Context) error {
	logger := s.app.logger
	excludeFile := s.app.config.Sources.ExcludeFile

	for {
		items := make([]string, 0, len(s.result.Candidates)+1)
		for _, c := range s.result.Candidates {
			items = append(items, fmt.Sprintf("%d %s / %s / %s", c.Rank, c.Filename, orDash(c.Email), orDash(c.Phone)))
		}

		candidatePrompt := promptui.Select{
			Label: "Choose a CV to remove and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}

		idx, _, err := candidatePrompt.Run()
		if err != nil {
			return err
		}
		if idx >= len(s.result.Candidates) {
			return nil
		}

		filename := s.result.Candidates[idx].Filename
		if err := removeCV(ctx, s.app, filename, excludeFile, "removed in interactive mode"); err != nil {
			return err
		}

		s.result = withoutCandidate(s.result, filename)
		logger.Info("removed from the ranking", zap.String("filename", filename))
	}
}

// removeCV drops filename from the index and appends it to excludeFile when
// set so the next sync skips it.
func removeCV(ctx context.Context, a *application, filename, excludeFile, reason string) error {
	res, err := a.manager.Remove(ctx, filename)
	if err != nil {
		return err
	}
	if !res.Removed {
		a.logger.Info("nothing to remove", zap.String("filename", filename), zap.String("reason", res.Message))
	}

	if excludeFile == "" {
		return nil
	}

	excluded, err := filtering.LoadExcluded(excludeFile)
	if err != nil {
		return err
	}
	if excluded.Append(filename, reason, time.Now()) {
		if err := excluded.Save(excludeFile); err != nil {
			return err
		}
		a.logger.Info("appended to exclude file", zap.String("filename", excludeFile))
	}
	return nil
}

func withoutCandidate(result *ranking.Result, filename string) *ranking.Result {
	out := *result
	out.Candidates = make([]ranking.Candidate, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		if c.Filename == filename {
			continue
		}
		c.Rank = len(out.Candidates) + 1
		out.Candidates = append(out.Candidates, c)
	}
	return &out
}

func dumpRanking(result *ranking.Result) (string, error) {
	f, err := os.CreateTemp("", app+"-ranking-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := printRanking(f, result, "json"); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
