package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Load the CV index, building it from the CV directory when missing or broken",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		a := mustApplication(ctx)

		var err error
		if force, _ := cmd.Flags().GetBool("force"); force {
			err = a.manager.Rebuild(ctx, a.config.Sources.Dir)
		} else {
			err = a.initialize(ctx)
		}
		if err != nil {
			a.logger.Fatal("building the index", zap.Error(err))
		}

		a.logger.Info("index ready", zap.Int("cvs", a.store.Len()), zap.String("dir", a.store.Dir()))
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Add CVs from the CV directory that are not indexed yet",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		a := mustApplication(ctx)

		if err := a.initialize(ctx); err != nil {
			a.logger.Fatal("initializing the index", zap.Error(err))
		}

		added, err := a.manager.Sync(ctx, a.config.Sources.Dir)
		if err != nil {
			a.logger.Fatal("syncing the index", zap.Error(err))
		}

		a.logger.Info("index synced", zap.Strings("added", added), zap.Int("cvs", a.store.Len()))
	},
}

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Add CV documents to the index",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustApplication(ctx)

		name, _ := cmd.Flags().GetString("name")
		if name != "" && len(args) > 1 {
			a.logger.Fatal("--name can only be used with a single document")
		}

		if err := a.initialize(ctx); err != nil {
			a.logger.Fatal("initializing the index", zap.Error(err))
		}

		failed := 0
		for _, path := range args {
			res := a.manager.Add(ctx, path, name)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success {
				failed++
			}
		}

		if failed > 0 {
			a.logger.Fatal("some documents were not added", zap.Int("failed", failed), zap.Int("total", len(args)))
		}
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <filename>...",
	Short: "Remove CVs from the index by filename",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustApplication(ctx)

		if err := a.initialize(ctx); err != nil {
			a.logger.Fatal("initializing the index", zap.Error(err))
		}

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			confirm := promptui.Prompt{
				Label:     fmt.Sprintf("Remove %d CV(s) from the index", len(args)),
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				a.logger.Info("exiting", zap.String("reason", "removal not confirmed"))
				return
			}
		}

		excludeFile := ""
		if exclude, _ := cmd.Flags().GetBool("exclude"); exclude {
			excludeFile = a.config.Sources.ExcludeFile
			if excludeFile == "" {
				a.logger.Fatal("--exclude requires sources.exclude-file to be set")
			}
		}

		for _, filename := range args {
			filename = filepath.Base(filename)
			if err := removeCV(ctx, a, filename, excludeFile, "removed from the command line"); err != nil {
				a.logger.Fatal("removing cv", zap.String("filename", filename), zap.Error(err))
			}
		}

		a.logger.Info("index updated", zap.Int("cvs", a.store.Len()))
	},
}

type listedCV struct {
	Filename   string    `json:"filename" yaml:"filename"`
	Email      string    `json:"email,omitempty" yaml:"email,omitempty"`
	Phone      string    `json:"phone,omitempty" yaml:"phone,omitempty"`
	ChunkCount int       `json:"chunks" yaml:"chunks"`
	Sections   []string  `json:"sections,omitempty" yaml:"sections,omitempty"`
	Summary    string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	AddedAt    time.Time `json:"added_at" yaml:"added_at"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed CVs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		a := mustApplication(ctx)

		if err := a.store.Load(); err != nil {
			a.logger.Fatal("loading the index", zap.Error(err), zap.String("hint", "run the build command first"))
		}

		records := a.store.Snapshot()
		out := make([]listedCV, 0, len(records))
		for _, rec := range records {
			item := listedCV{
				Filename:   rec.Filename,
				ChunkCount: rec.ChunkCount,
				Summary:    rec.Summary,
				AddedAt:    rec.AddedAt,
			}
			if rec.Contact != nil {
				item.Email = rec.Contact.EmailOrEmpty()
				item.Phone = rec.Contact.PhoneOrEmpty()
			}
			for name := range rec.Sections {
				item.Sections = append(item.Sections, name)
			}
			slices.Sort(item.Sections)
			out = append(out, item)
		}

		format, _ := cmd.Flags().GetString("output")
		if err := encode(cmd.OutOrStdout(), out, format); err != nil {
			a.logger.Fatal("printing cvs", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(buildCmd, syncCmd, addCmd, removeCmd, listCmd)

	buildCmd.Flags().BoolP("force", "f", false, "rebuild from the CV directory even when a valid index exists")

	addCmd.Flags().StringP("name", "n", "", "filename to store the document under (defaults to the base name of the path)")

	removeCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	removeCmd.Flags().BoolP("exclude", "e", false, "also append the removed CVs to the exclude file")

	listCmd.Flags().StringP("output", "o", formatJSON, "output format: json or yaml")
}

func mustApplication(ctx context.Context) *application {
	a, err := newApplication(ctx)
	if err != nil {
		fatal(err)
	}
	return a
}
