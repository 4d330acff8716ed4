package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/builder"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/trace"
)

var (
	situationPath string   // Situation file, YAML or JSON
	calcVariables []string // Variables to compute
	calcPeriod    string   // Period of the computed variables
	calcTrace     bool     // Print the computation log
	calcAggregate bool     // Summarize vectors in the computation log
	calcMaxDepth  int      // Depth limit of the computation log
	calcMemory    bool     // Print the memory footprint of the holders
	simConfigPath string   // Simulation config YAML
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Compute variables on a situation file",
	Run: func(cmd *cobra.Command, args []string) {
		system, err := loadSystem(parametersDir, reforms)
		if err != nil {
			logrus.Fatalf("Loading system: %v", err)
		}
		cfg := sim.DefaultSimulationConfig()
		if simConfigPath != "" {
			loaded, err := sim.LoadSimulationConfig(simConfigPath)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			cfg = *loaded
		}
		if calcTrace {
			cfg.Trace = string(trace.LevelFull)
		}
		data, err := os.ReadFile(situationPath)
		if err != nil {
			logrus.Fatalf("Reading situation: %v", err)
		}
		if err := calculate(cmd.OutOrStdout(), system, cfg, data); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// calculate builds the situation, computes the --variable list and the
// null values of the situation, and prints one line per entity.
func calculate(w io.Writer, system *sim.TaxBenefitSystem, cfg sim.SimulationConfig, situation []byte) error {
	b := builder.New(system)
	b.Config = cfg
	res, err := b.BuildYAML(situation)
	if err != nil {
		return err
	}
	defer res.Simulation.Close()

	type job struct {
		variable string
		period   periods.Period
	}
	var jobs []job
	if len(calcVariables) > 0 {
		period, err := periods.Parse(calcPeriod)
		if err != nil {
			return fmt.Errorf("--period: %w", err)
		}
		for _, v := range calcVariables {
			jobs = append(jobs, job{v, period})
		}
	}
	seen := make(map[string]bool)
	for _, r := range res.Requests {
		key := trace.Key(r.Variable, r.Period)
		if !seen[key] {
			seen[key] = true
			jobs = append(jobs, job{r.Variable, r.Period})
		}
	}
	if len(jobs) == 0 {
		return fmt.Errorf("nothing to compute: pass --variable or leave null values in the situation")
	}

	for _, j := range jobs {
		arr, err := res.Simulation.Calculate(j.variable, j.period)
		if err != nil {
			return err
		}
		v, err := system.Variable(j.variable)
		if err != nil {
			return err
		}
		pop, err := res.Simulation.Population(v.Entity.Key)
		if err != nil {
			return err
		}
		values := trace.Serialize(arr)
		fmt.Fprintf(w, "%s\n", trace.Key(j.variable, j.period))
		for i, id := range pop.IDs {
			fmt.Fprintf(w, "  %s: %v\n", id, values[i])
		}
	}

	if calcTrace {
		fmt.Fprintln(w, "\nComputation log:")
		for _, line := range res.Simulation.Tracer.ComputationLog(calcAggregate, calcMaxDepth) {
			fmt.Fprintln(w, line)
		}
	}
	if calcMemory {
		printMemoryUsage(w, res.Simulation.MemoryUsage())
	}
	return nil
}

func printMemoryUsage(w io.Writer, usage sim.SimulationMemoryUsage) {
	names := make([]string, 0, len(usage.ByVariable))
	for name := range usage.ByVariable {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\nMemory usage: %s\n", humanize.Bytes(uint64(usage.TotalNbBytes)))
	for _, name := range names {
		u := usage.ByVariable[name]
		fmt.Fprintf(w, "  %-32s %8s  %d array(s), %d on disk, %s\n",
			name, humanize.Bytes(uint64(u.TotalNbBytes)), u.NbArrays, u.NbArraysOnDisk, u.DType)
	}
}

func init() {
	calculateCmd.Flags().StringVar(&situationPath, "situation", "", "Situation file, YAML or JSON")
	_ = calculateCmd.MarkFlagRequired("situation")
	calculateCmd.Flags().StringSliceVar(&calcVariables, "variable", nil, "Variable to compute (can be repeated)")
	calculateCmd.Flags().StringVar(&calcPeriod, "period", "", "Period of the --variable list, e.g. 2017-01 or 2017")
	calculateCmd.Flags().StringVar(&simConfigPath, "config", "", "Simulation config YAML (trace, max_spiral_loops, cache_blacklist, memory)")
	calculateCmd.Flags().BoolVar(&calcTrace, "trace", false, "Print the computation log")
	calculateCmd.Flags().BoolVar(&calcAggregate, "aggregate", false, "Summarize vectors as avg/max/min in the computation log")
	calculateCmd.Flags().IntVar(&calcMaxDepth, "max-depth", 0, "Depth limit of the computation log (0 = unlimited)")
	calculateCmd.Flags().BoolVar(&calcMemory, "memory", false, "Print the memory footprint of the computed variables")

	rootCmd.AddCommand(calculateCmd)
}
