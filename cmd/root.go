package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"bioknowledge/kbsync/internal/config"
	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/kb/local"
	"bioknowledge/kbsync/internal/kb/wikibase"
	"bioknowledge/kbsync/internal/logging"
	"bioknowledge/kbsync/internal/report"
)

var (
	configPath  string
	backendName string
	localDBPath string
	logMode     string
	jsonOutput  bool
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:           "kbsync",
	Short:         "Synchronize a node/edge graph with a Wikibase knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to kbsync.yaml")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Knowledge base backend: wikibase or local")
	rootCmd.PersistentFlags().StringVar(&localDBPath, "local-db", "", "SQLite file for the local backend")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: dev or prod")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this Prometheus textfile")
}

// runEnv is what a sync command needs: settings, a logger and a client.
type runEnv struct {
	cfg    config.Config
	log    *logging.Logger
	client kb.Client
	close  func() error
}

// loadConfig loads the config file and applies the persistent flags that
// were set on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backendName
	}
	if flags.Changed("local-db") {
		cfg.Local.Path = localDBPath
	}
	if flags.Changed("log-mode") {
		cfg.LogMode = logMode
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	return cfg, nil
}

// setup builds the run environment. write says whether the command will
// write to the knowledge base.
func setup(cmd *cobra.Command, cfg config.Config, write bool) (*runEnv, error) {
	if err := cfg.Validate(write); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	log = log.With("command", cmd.Name())

	env := &runEnv{cfg: cfg, log: log, close: func() error { return nil }}
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := local.Open(cfg.Local.Path)
		if err != nil {
			return nil, err
		}
		store.MaxStatementsPerEdit = cfg.Local.MaxStatementsPerEdit
		env.client, env.close = store, store.Close
		log.Info("using local knowledge base", "path", cfg.Local.Path)
	default:
		client, err := wikibase.New(cfg.Wikibase, wikibase.WithLogger(log))
		if err != nil {
			return nil, err
		}
		env.client = client
		log.Info("using wikibase", "api", cfg.Wikibase.APIURL, "sparql", cfg.Wikibase.SPARQLURL)
	}
	return env, nil
}

// finish stamps the summary, prints it and writes the metrics textfile. The
// summary is printed even when the run failed.
func finish(cmd *cobra.Command, env *runEnv, sum *report.Summary, runErr error) error {
	sum.Finish(runErr)
	out := cmd.OutOrStdout()
	var err error
	if jsonOutput {
		err = sum.WriteJSON(out)
	} else {
		err = sum.WriteText(out)
	}
	if err != nil {
		env.log.Warn("printing summary failed", "error", err)
	}
	if env.cfg.MetricsFile != "" {
		if err := sum.WriteMetrics(env.cfg.MetricsFile); err != nil {
			env.log.Warn("writing metrics failed", "path", env.cfg.MetricsFile, "error", err)
		}
	}
	if err := env.close(); err != nil {
		env.log.Warn("closing knowledge base failed", "error", err)
	}
	env.log.Sync()
	return runErr
}
