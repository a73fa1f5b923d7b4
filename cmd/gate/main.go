// Package main implements the gate CLI: the human checkpoint protocol for
// autonomous coding agents.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gatecheck/internal/checkpoint"
	"gatecheck/internal/config"
	"gatecheck/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	logger *zap.Logger
	proto  *checkpoint.Protocol
)

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "Human checkpoints for autonomous coding agents",
	Long: `gate suspends an agent at a checkpoint, asks the human a short list of
questions, and records the decision in the vision ledger.

Requests and responses live in the workspace's .gate/ directory. The agent
reads them with 'gate check' and answers with 'gate submit'; a human can also
answer in the browser with 'gate approve'. 'gate align evaluate' decides
whether an action needs a checkpoint at all.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}

		cfgPath := configPath
		if cfgPath == "" {
			cfgPath = config.ConfigPath(ws)
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		if err := logging.Initialize(filepath.Join(cfg.Dir(ws), "logs"), cfg.Logging); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}

		errOut := cmd.ErrOrStderr()
		proto, err = checkpoint.New(ws, cfg, checkpoint.Options{
			OnApprovalReady: func(url string) {
				fmt.Fprintf(errOut, "Approval form: %s\n", url)
			},
		})
		if err != nil {
			return err
		}

		logger.Debug("gate ready", zap.String("workspace", ws), zap.String("config", cfgPath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if proto != nil {
			if err := proto.Close(); err != nil && logger != nil {
				logger.Warn("close protocol", zap.Error(err))
			}
			proto = nil
		}
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.gate/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
