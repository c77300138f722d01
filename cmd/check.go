package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"bioknowledge/kbsync/internal/graph"
	"bioknowledge/kbsync/internal/table"
)

var (
	checkNodes        string
	checkEdges        string
	checkTopN         int
	checkHubThreshold int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Inspect node and edge tables before a push: topology, dangling edges, duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := table.LoadNodes(checkNodes)
		if err != nil {
			return err
		}
		edges, err := table.LoadEdges(checkEdges)
		if err != nil {
			return err
		}

		report := graph.Check(nodes, edges, &graph.CheckConfig{
			HubThreshold: checkHubThreshold,
			TopN:         checkTopN,
		})

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printCheckReport(out, report)
		}
		if !report.OK() {
			return fmt.Errorf("check failed: %d dangling edges, %d duplicate ids",
				report.DanglingCount, len(report.DuplicateIDs))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkNodes, "nodes", "nodes.csv", "Node table")
	checkCmd.Flags().StringVar(&checkEdges, "edges", "edges.csv", "Edge table")
	checkCmd.Flags().IntVar(&checkTopN, "top-n", 10, "Number of top items to show per section")
	checkCmd.Flags().IntVar(&checkHubThreshold, "hub-threshold", 15, "Minimum degree to consider a node a hub")
	rootCmd.AddCommand(checkCmd)
}

const rule = "  ────────────────────────────────────────"

func printCheckReport(w io.Writer, r *graph.CheckReport) {
	t := r.Topology
	fmt.Fprintln(w, "\n  TOPOLOGY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Nodes: %d  Edges: %d  Components: %d\n", t.TotalNodes, t.TotalEdges, t.NumComponents)
	fmt.Fprintf(w, "  Largest component: %d  Smallest: %d\n", t.LargestComponent, t.SmallestComponent)

	if t.OrphanCount > 0 {
		fmt.Fprintf(w, "  Orphans: %d disconnected nodes\n", t.OrphanCount)
		limit := min(5, len(t.OrphanIDs))
		for _, id := range t.OrphanIDs[:limit] {
			fmt.Fprintf(w, "    - %s\n", id)
		}
		if t.OrphanCount > 5 {
			fmt.Fprintf(w, "    ... and %d more\n", t.OrphanCount-5)
		}
	}

	fmt.Fprintln(w, "\n  Degree distribution:")
	for _, b := range t.DegreeHistogram {
		if b.Count > 0 {
			barWidth := max(int(math.Log2(float64(b.Count)))+2, 1)
			fmt.Fprintf(w, "    %5s: %4d  %s\n", b.Label, b.Count, strings.Repeat("=", barWidth))
		}
	}

	if len(t.Hubs) > 0 {
		fmt.Fprintln(w, "\n  Top hubs (degree > threshold):")
		for _, hub := range t.Hubs {
			fmt.Fprintf(w, "    %s degree=%d (in=%d, out=%d)  %s\n",
				hub.ID, hub.Degree, hub.InDegree, hub.OutDegree, truncTitle(hub.Title, 40))
		}
	}

	fmt.Fprintln(w, "\n  CONTENT")
	fmt.Fprintln(w, rule)
	for _, label := range r.SortedLabels() {
		fmt.Fprintf(w, "  %-12s %6d nodes\n", label, r.Labels[label])
	}
	if r.UnlabeledCount > 0 {
		fmt.Fprintf(w, "  %-12s %6d nodes\n", "(unlabeled)", r.UnlabeledCount)
	}
	for _, p := range r.SortedPredicates() {
		fmt.Fprintf(w, "  %-24s %6d edges\n", truncTitle(p, 24), r.Predicates[p])
	}

	if !r.OK() || r.SelfLoops > 0 {
		fmt.Fprintln(w, "\n  PROBLEMS")
		fmt.Fprintln(w, rule)
		if n := len(r.DuplicateIDs); n > 0 {
			fmt.Fprintf(w, "  %d duplicate node ids:\n", n)
			for _, id := range r.DuplicateIDs[:min(10, n)] {
				fmt.Fprintf(w, "    - %s\n", id)
			}
		}
		if r.DanglingCount > 0 {
			fmt.Fprintf(w, "  %d edges reference unknown nodes:\n", r.DanglingCount)
			for _, e := range r.Dangling {
				fmt.Fprintf(w, "    %s -[%s]-> %s\n", e.Source, e.Predicate, e.Target)
			}
		}
		if r.SelfLoops > 0 {
			fmt.Fprintf(w, "  %d self loops\n", r.SelfLoops)
		}
	}

	fmt.Fprintln(w)
}

func truncTitle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
