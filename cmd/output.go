package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"text/tabwriter"

	"github.com/spigell/cv-ranker/internal/ranking"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// fatal reports errors raised before a logger exists.
func fatal(err error) {
	log.Fatal(err)
}

func printRanking(w io.Writer, result *ranking.Result, format string) error {
	switch format {
	case formatJSON:
		return encode(w, result, format)
	case formatYAML:
		return encode(w, result, format)
	case formatTable, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tFILE\tSIMILARITY\tEMAIL\tPHONE")
		for _, c := range result.Candidates {
			fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\t%s\n", c.Rank, c.Filename, c.Similarity, orDash(c.Email), orDash(c.Phone))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if result.Fallback {
			fmt.Fprintf(w, "\nordered by vector similarity only: %s\n", result.FallbackReason)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func encode(w io.Writer, v any, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
