package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bioknowledge/kbsync/internal/reload"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/reverse"
	"bioknowledge/kbsync/internal/table"
)

var (
	pullNodesOut string
	pullEdgesOut string
	pullReload   bool
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Export the knowledge base back to node and edge tables",
	Long: `Pull reads every typed item and its statements and writes them as node and
edge tables. With --reload the tables are then loaded into Neo4j; a failed
reload is reported but does not fail the pull.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("reload") {
			cfg.Sync.Reload = pullReload
		}

		env, err := setup(cmd, cfg, false)
		if err != nil {
			return err
		}

		sum := report.New("pull")
		res, runErr := reverse.New(env.client, env.log, sum).Run(cmd.Context())
		if runErr == nil {
			runErr = saveTables(res)
		}
		if runErr != nil {
			env.log.Error("pull failed", "error", runErr)
			return finish(cmd, env, sum, runErr)
		}
		env.log.Info("tables written", "nodes", pullNodesOut, "edges", pullEdgesOut)

		if cfg.Sync.Reload {
			if err := reloadGraph(cmd.Context(), env, res); err != nil {
				sum.Inc(report.ReloadFailed)
				env.log.Error("reload failed", "error", err)
			}
		}
		return finish(cmd, env, sum, nil)
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullNodesOut, "nodes-out", "nodes.csv", "Where to write the node table")
	pullCmd.Flags().StringVar(&pullEdgesOut, "edges-out", "edges.csv", "Where to write the edge table")
	pullCmd.Flags().BoolVar(&pullReload, "reload", false, "Load the pulled tables into Neo4j")
	rootCmd.AddCommand(pullCmd)
}

func saveTables(res *reverse.Result) error {
	if err := table.SaveNodes(pullNodesOut, res.Nodes); err != nil {
		return fmt.Errorf("writing nodes: %w", err)
	}
	if err := table.SaveEdges(pullEdgesOut, res.Edges); err != nil {
		return fmt.Errorf("writing edges: %w", err)
	}
	return nil
}

func reloadGraph(ctx context.Context, env *runEnv, res *reverse.Result) error {
	loader, err := reload.NewNeo4j(ctx, env.cfg.Neo4j, env.log)
	if err != nil {
		return err
	}
	defer loader.Close(ctx)
	return loader.Load(ctx, res.Nodes, res.Edges)
}
