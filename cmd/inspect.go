package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mrmurphy/internal/equivalence"
	"github.com/xkilldash9x/mrmurphy/internal/journal"
	"github.com/xkilldash9x/mrmurphy/internal/observability"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <journal>",
		Short: "Summarizes a journal written by explore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			judge := equivalence.New(cfg.EquivalenceTolerance(), observability.GetLogger())
			jr, err := journal.Load(args[0], judge, observability.GetLogger())
			if err != nil {
				return err
			}
			return printJournal(cmd.OutOrStdout(), jr)
		},
	}
	cmd.AddCommand(newCompareCmd())
	return cmd
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <node-dir> <node-dir>",
		Short: "Explains whether two dumped states are equivalent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			a, err := journal.LoadState(args[0])
			if err != nil {
				return err
			}
			b, err := journal.LoadState(args[1])
			if err != nil {
				return err
			}

			judge := equivalence.New(cfg.EquivalenceTolerance(), observability.GetLogger())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Titles:     %q / %q\n", a.Window.Title, b.Window.Title)
			fmt.Fprintf(out, "Actions:    %d / %d, same: %t\n", len(a.Actions), len(b.Actions), equivalence.SameActions(a.Actions, b.Actions))

			rects := equivalence.ActionRects(a)
			distance, err := judge.Distance(a.Window.Image, b.Window.Image, rects)
			switch {
			case errors.Is(err, equivalence.ErrSizeMismatch):
				fmt.Fprintln(out, "Distance:   images differ in size")
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "Distance:   %.3f (tolerance %.3f)\n", distance, cfg.Tolerance.Image)
			}
			fmt.Fprintf(out, "Equivalent: %t\n", judge.Equivalent(a, b))
			return nil
		},
	}
}

// printJournal writes the node and edge counts followed by one row per node
// with its distance from the initial node.
func printJournal(out io.Writer, jr *journal.Journal) error {
	fmt.Fprintf(out, "Journal %s: %d nodes, %d edges\n\n", jr.Dir(), jr.Len(), jr.EdgeCount())
	if jr.Len() == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tDEPTH\tACTIONS\tEDGES\tTITLE")
	initial := jr.Initial()
	for _, n := range jr.Nodes() {
		depth := "-"
		if d, err := jr.Distance(initial, n); err == nil {
			depth = fmt.Sprint(d)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", n.Index, depth, len(n.State.Actions), len(n.Edges), n.State.Window.Title)
	}
	return tw.Flush()
}
