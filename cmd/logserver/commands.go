package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Chichichkin/LogServer/internal/config"
)

type rootFlags struct {
	configPath string
	port       int
	host       string
	logsDir    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "logserver",
		Short:         "Buffered log collection server",
		Long:          "logserver accepts log entries over HTTP, buffers them per channel and appends them to size-rotated files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.loadOptions(cmd))
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().IntVarP(&flags.port, "port", "p", 0, "HTTP listen port")
	root.PersistentFlags().StringVar(&flags.host, "host", "", "HTTP listen host")
	root.PersistentFlags().StringVar(&flags.logsDir, "logs-dir", "", "directory channel files are written to")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "level of the server's own logs")

	root.AddCommand(newConfigCommand(flags))
	return root
}

// loadOptions turns the flags the user actually set into koanf overrides.
func (f *rootFlags) loadOptions(cmd *cobra.Command) config.LoadOptions {
	overrides := map[string]any{}
	pf := cmd.Flags()
	if pf.Changed("port") {
		overrides["server.port"] = f.port
	}
	if pf.Changed("host") {
		overrides["server.host"] = f.host
	}
	if pf.Changed("logs-dir") {
		overrides["logs_dir"] = f.logsDir
	}
	if pf.Changed("log-level") {
		overrides["logging.level"] = f.logLevel
	}
	return config.LoadOptions{Path: f.configPath, Overrides: overrides}
}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the resolved result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.loadOptions(cmd))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = fmt.Fprintln(os.Stdout, string(out))
			return err
		},
	}
}
