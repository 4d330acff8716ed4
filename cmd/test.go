package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/yamltest"
)

var (
	testName     string   // Only run tests whose name contains this
	testKeywords []string // Only run tests carrying every keyword
	testParallel int      // Tests running at once; 0 = GOMAXPROCS
	testVerbose  bool     // Print passing tests too
)

var testCmd = &cobra.Command{
	Use:   "test <path>...",
	Short: "Run YAML test files or directories against the legislation",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		system, err := loadSystem(parametersDir, reforms)
		if err != nil {
			logrus.Fatalf("Loading system: %v", err)
		}
		failed, err := runTests(cmd.Context(), cmd.OutOrStdout(), system, args)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if failed > 0 {
			logrus.Fatalf("%d test(s) failed", failed)
		}
	},
}

// runTests loads, filters and runs the tests under paths, writing a report
// to w. It returns the number of failed tests.
func runTests(ctx context.Context, w io.Writer, system *sim.TaxBenefitSystem, paths []string) (int, error) {
	var tests []*yamltest.Test
	for _, p := range paths {
		loaded, err := yamltest.Load(p)
		if err != nil {
			return 0, err
		}
		tests = append(tests, loaded...)
	}
	tests = yamltest.Select(tests, testName, testKeywords...)
	if len(tests) == 0 {
		return 0, fmt.Errorf("no test selected in %v", paths)
	}

	runner := yamltest.NewRunner(system)
	runner.Parallelism = testParallel
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := runner.Run(ctx, tests)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "FAIL %s\n    %v\n", r.Test.Label(), r.Err)
		case !r.Passed():
			failed++
			fmt.Fprintf(w, "FAIL %s\n", r.Test.Label())
			for _, f := range r.Failures {
				fmt.Fprintf(w, "    %s\n", f)
			}
		case testVerbose:
			fmt.Fprintf(w, "ok   %s\n", r.Test.Label())
		}
	}
	fmt.Fprintf(w, "%d passed, %d failed\n", len(results)-failed, failed)
	return failed, nil
}

func init() {
	testCmd.Flags().StringVar(&testName, "name", "", "Only run tests whose name contains this string")
	testCmd.Flags().StringSliceVar(&testKeywords, "keyword", nil, "Only run tests carrying this keyword (can be repeated)")
	testCmd.Flags().IntVar(&testParallel, "parallel", 0, "Tests running at once (0 = GOMAXPROCS)")
	testCmd.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "Print passing tests too")

	rootCmd.AddCommand(testCmd)
}
