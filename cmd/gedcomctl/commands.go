package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/facette/natsort"
	"github.com/spf13/cobra"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/layout"
	"github.com/camden-git/familytree/tree"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gedcomctl",
		Short:         "Inspect, normalize and lay out GEDCOM family trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newParseCmd(),
		newExportCmd(),
		newGenerationsCmd(),
		newLayoutCmd(),
		newValidateCmd(),
	)
	return root
}

func newParseCmd() *cobra.Command {
	var showSkipped bool
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Print the people of a GEDCOM file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := importFile(args[0])
			if err != nil {
				return err
			}
			if showSkipped {
				printSkipped(cmd.ErrOrStderr(), result.Skipped)
			}
			return writeIndentedJSON(cmd.OutOrStdout(), result.People)
		},
	}
	cmd.Flags().BoolVar(&showSkipped, "skipped", false, "report skipped lines on stderr")
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Rewrite a GEDCOM file in normalized form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := importFile(args[0])
			if err != nil {
				return err
			}
			text := gedcom.Write(tree.New(result.People).People())
			if output == "" || output == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			if err := os.WriteFile(output, []byte(text), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d people to %s\n", len(result.People), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	return cmd
}

func newGenerationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generations <file>",
		Short: "List every person with their generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := importFile(args[0])
			if err != nil {
				return err
			}
			t := tree.New(result.People)
			_, gens := t.Graph()
			people := t.People()
			sort.SliceStable(people, func(i, j int) bool {
				li, lj := gens.Level(people[i].ID), gens.Level(people[j].ID)
				if li != lj {
					return li < lj
				}
				return natsort.Compare(people[i].Label(gedcom.DefaultLocale), people[j].Label(gedcom.DefaultLocale))
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GEN\tID\tNAME")
			for _, p := range people {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", gens.Level(p.ID), p.ID, p.Label(gedcom.DefaultLocale))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !gens.Converged {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: generations did not converge after %d passes, the tree has a relationship cycle\n", gens.Passes)
			}
			return nil
		},
	}
}

func newLayoutCmd() *cobra.Command {
	var (
		ticks   int
		svgPath string
		padding float64
		locale  string
		params  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "layout <file>",
		Short: "Run the force layout and print node positions or write an SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ticks <= 0 {
				return fmt.Errorf("--ticks must be positive")
			}
			p, err := layout.ApplyOverrides(layout.DefaultParams(), params)
			if err != nil {
				return fmt.Errorf("%w (accepted keys: %s)", err, strings.Join(layout.OverrideKeys(), ", "))
			}
			result, err := importFile(args[0])
			if err != nil {
				return err
			}

			t := tree.New(result.People)
			links, gens := t.Graph()
			state := layout.Run(layout.NewState(t.People(), links, gens, nil, p), p, ticks)
			if svgPath == "" {
				return writeIndentedJSON(cmd.OutOrStdout(), state.Nodes)
			}

			cmds := layout.Render(state, t.People(), layout.RenderOptions{Style: p.Style, Locale: locale})
			var buf bytes.Buffer
			if err := layout.WriteSVG(&buf, cmds, layout.SvgOptions{Style: p.Style, Padding: padding}); err != nil {
				return fmt.Errorf("failed to render SVG: %w", err)
			}
			if err := os.WriteFile(svgPath, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", svgPath, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s after %d ticks (stable: %t)\n", svgPath, state.Ticks, state.Stable(p))
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 300, "simulation ticks to run")
	cmd.Flags().StringVar(&svgPath, "svg", "", "write an SVG rendering to this path instead of JSON")
	cmd.Flags().Float64Var(&padding, "padding", 40, "SVG padding around the tree")
	cmd.Flags().StringVar(&locale, "locale", gedcom.DefaultLocale, "name locale for card labels")
	cmd.Flags().StringToStringVar(&params, "param", nil, "force parameter override, e.g. --param chargeStrength=-500")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var maxBytes int64
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a file would be accepted for upload and report skipped lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if err := gedcom.ValidateUpload(filepath.Base(args[0]), info.Size(), maxBytes); err != nil {
				return err
			}
			result, err := importFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "people: %d\nfamilies: %d\nskipped lines: %d\n", len(result.People), result.Families, len(result.Skipped))
			printSkipped(out, result.Skipped)
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", gedcom.DefaultMaxUploadBytes, "maximum accepted file size")
	return cmd
}

// importFile reads and imports a GEDCOM file, tolerating a UTF-8 BOM.
func importFile(path string) (gedcom.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return gedcom.Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	result, err := gedcom.Import(string(raw))
	if err != nil {
		return gedcom.Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

func printSkipped(w io.Writer, skipped []gedcom.SkippedLine) {
	for _, s := range skipped {
		fmt.Fprintf(w, "line %d: %s (%s)\n", s.Number, s.Text, s.Reason)
	}
}

func writeIndentedJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
