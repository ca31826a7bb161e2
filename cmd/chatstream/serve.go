package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/chatstream/kernel"
)

func newServeCmd() *cobra.Command {
	var (
		configFile string
		addr       string
		storeDrv   string
		provider   string
		logFormat  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket and control server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := kernel.DefaultConfig()
			if configFile != "" {
				loaded, err := kernel.LoadConfig(configFile)
				if err != nil {
					return err
				}
				cfg = *loaded
			}

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if storeDrv != "" {
				cfg.Store.Driver = storeDrv
			}
			if provider != "" {
				cfg.Generation.Provider = provider
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}
			if verbose {
				cfg.LogLevel = "debug"
			}

			logger, err := kernel.NewLogger(&cfg)
			if err != nil {
				return err
			}

			k, err := kernel.New(cmd.Context(), &cfg, kernel.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			return k.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Path to config file (JSON or YAML)")
	f.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	f.StringVar(&storeDrv, "store", "", "Store driver (overrides config)")
	f.StringVar(&provider, "provider", "", "Model provider (overrides config)")
	f.StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")
	f.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	return cmd
}
