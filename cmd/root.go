package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/countrytemplate"
	"github.com/legisim/legisim/sim/parameters"
)

var (
	logLevel      string   // Log verbosity level
	parametersDir string   // Parameter directory replacing the built-in one
	reforms       []string // Registered reforms to apply, in order
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "legisim",
	Short: "Microsimulation engine for tax and benefit legislation",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// loadSystem builds the country template, optionally with the parameters
// of dir, then applies the named reforms.
func loadSystem(dir string, reformNames []string) (*sim.TaxBenefitSystem, error) {
	system, err := countrytemplate.New()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		tree, err := parameters.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		system.Parameters = tree
		logrus.Infof("Loaded %d parameters from %s", len(tree.Leaves()), dir)
	}
	if len(reformNames) > 0 {
		if system, err = system.ApplyReforms(reformNames...); err != nil {
			return nil, fmt.Errorf("applying reforms: %w", err)
		}
	}
	return system, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up the flags shared by every subcommand
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&parametersDir, "parameters", "", "Parameter directory replacing the built-in parameters")
	rootCmd.PersistentFlags().StringSliceVar(&reforms, "reform", nil, "Registered reform to apply (can be repeated)")
}
