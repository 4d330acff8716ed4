package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim/api"
)

var (
	serveAddr   string // Listen address, overrides the config file
	serveConfig string // Path to the server config YAML
	serveWatch  bool   // Reload parameters when their files change
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the legislation over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := api.DefaultConfig()
		if serveConfig != "" {
			loaded, err := loadServerConfig(serveConfig)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			cfg = *loaded
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}
		if serveWatch && parametersDir == "" {
			logrus.Fatalf("--watch needs --parameters")
		}

		system, err := loadSystem(parametersDir, reforms)
		if err != nil {
			logrus.Fatalf("Loading system: %v", err)
		}
		srv, err := api.New(system, cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })
		if serveWatch {
			g.Go(func() error { return srv.WatchParameters(ctx, parametersDir) })
		}
		if err := g.Wait(); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Server stopped.")
	},
}

// loadServerConfig reads a server config file strictly: unknown keys are
// rejected.
func loadServerConfig(path string) (*api.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}
	cfg := api.DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing server config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:5000", "Listen address")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Server config YAML (addr, shutdown_timeout, simulation)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload --parameters when their files change")

	rootCmd.AddCommand(serveCmd)
}
