package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanet-platform/nlmon/common/go/logging"
	"github.com/yanet-platform/nlmon/common/go/xcmd"
	"github.com/yanet-platform/nlmon/monitor"
)

var rootCmdArgs struct {
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:           "nlmon",
	Short:         "Query the kernel neighbour table and watch link state changes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootCmdArgs.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.AddCommand(neighCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, xcmd.Interrupted{}) {
			return
		}

		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and initializes logging.
func setup() (*monitor.Config, *zap.SugaredLogger, error) {
	cfg, err := monitor.LoadConfig(rootCmdArgs.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	return cfg, log, nil
}
