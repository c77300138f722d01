package cmd

import (
	"github.com/spf13/cobra"

	"bioknowledge/kbsync/internal/forward"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
)

var (
	pushNodes    string
	pushEdges    string
	pushForce    bool
	pushSimulate bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Load node and edge tables into the knowledge base",
	Long: `Push creates the structural properties, one property per edge predicate,
one class per node label and one item per node, then writes every edge as a
statement on its subject item. Existing items are skipped unless --force.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("force") {
			cfg.Sync.Force = pushForce
		}
		if cmd.Flags().Changed("simulate") {
			cfg.Sync.Simulate = pushSimulate
		}

		nodes, err := table.LoadNodes(pushNodes)
		if err != nil {
			return err
		}
		edges, err := table.LoadEdges(pushEdges)
		if err != nil {
			return err
		}

		env, err := setup(cmd, cfg, !cfg.Sync.Simulate)
		if err != nil {
			return err
		}
		env.log.Info("push starting", "nodes", len(nodes), "edges", len(edges),
			"force", cfg.Sync.Force, "simulate", cfg.Sync.Simulate)

		sum := report.New("push")
		syncer := forward.New(env.client, env.log, sum, forward.Options{
			Force:    cfg.Sync.Force,
			Simulate: cfg.Sync.Simulate,
		})
		runErr := syncer.Run(cmd.Context(), nodes, edges)
		if runErr != nil {
			env.log.Error("push failed", "error", runErr)
		}
		return finish(cmd, env, sum, runErr)
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushNodes, "nodes", "nodes.csv", "Node table to push")
	pushCmd.Flags().StringVar(&pushEdges, "edges", "edges.csv", "Edge table to push")
	pushCmd.Flags().BoolVar(&pushForce, "force", false, "Recreate items that already exist")
	pushCmd.Flags().BoolVar(&pushSimulate, "simulate", false, "Walk the whole run without writing to the knowledge base")
	rootCmd.AddCommand(pushCmd)
}
