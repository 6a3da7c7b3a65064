package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	nomos "github.com/misaret/nomos-go"
	"github.com/misaret/nomos-go/config"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("not found")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nomosctl",
		Short:         "Inspect and operate Nomos storage servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	root.PersistentFlags().String("servers", "", "Comma separated host:port list; overrides NOMOS_SERVERS")
	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.PersistentFlags().Duration("timeout", nomos.DefaultTimeout, "Request timeout")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newGetCmd(),
		newPutCmd(),
		newDeleteCmd(),
		newPingCmd(),
		newRouteCmd(),
		newServeCmd(),
	)
	return root
}

// loadConfig resolves the configuration from --config, then --servers, then
// the environment. Explicit flags win over whatever the source says.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	servers, _ := cmd.Flags().GetString("servers")

	var cfg config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.Load(path)
	case servers != "":
		cfg, err = config.Decode(map[string]any{"servers": servers})
	default:
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("timeout") {
		cfg.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func openClient(cmd *cobra.Command) (*nomos.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cfg.NewClient(cfg.Logger(), nil)
}

// namespace parses the leading level and sub level arguments.
func namespace(args []string) (int, int, error) {
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("level %q: %w", args[0], err)
	}
	subLevel, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("sub level %q: %w", args[1], err)
	}
	return level, subLevel, nil
}

// durationSeconds rounds up so a sub-second TTL does not become 0, which the
// backend reads as no expiry.
func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
