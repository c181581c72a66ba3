package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func versionString() string {
	return fmt.Sprintf("probe %s (commit %s, built %s, %s)", version, commit, buildTime, goVersion)
}

// app is the state shared by every command once PersistentPreRunE has run.
type app struct {
	configPath string
	cfg        appConfig
	log        *zap.Logger
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "probe",
		Short: "Batch HTTP request runner for retrieval and LLM endpoints",
		Long: `probe reads query rows from spreadsheets, sends one templated POST per row
with bounded concurrency and retries, and streams every outcome to JSON Lines
files split into successes and errors.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFile, cfg.TUI)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger
			zap.ReplaceGlobals(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.SetOut(out)
	root.SetVersionTemplate(versionString() + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default is $HOME/.config/probe/config.yml)")
	pf.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	pf.String("log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newCasesCmd(a))
	root.AddCommand(newReportCmd(a))
	root.AddCommand(newPipelineCmd(a))
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
