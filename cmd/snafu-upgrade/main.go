package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"snafu-upgrade/internal/driver"
	"snafu-upgrade/internal/rule"
	"snafu-upgrade/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "snafu-upgrade [flags]",
	Short: "Upgrade SNAFU context selectors between semver-incompatible versions",
	Long: `snafu-upgrade repeatedly runs cargo check against a project, finds the
errors caused by old-style SNAFU context selector names, rewrites the
offending identifiers with the new suffixed names, and re-checks until
the project compiles or no further progress can be made.`,
	Args:          cobra.NoArgs,
	RunE:          runUpgrade,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.Version = version.Version
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().Bool("dry-run", false, "do not write changes to disk, report them instead")
	rootCmd.Flags().StringArray("extra-check-arg", nil, "extra argument to cargo check, may be repeated")
	rootCmd.Flags().String("suffix", rule.DefaultSuffix, "context selector suffix to use")
	rootCmd.Flags().String("directory", "", "directory to make changes in (default: workspace root)")
	rootCmd.Flags().Int("max-iterations", driver.DefaultMaxIterations, "how many iterations to perform before giving up")
	rootCmd.Flags().Bool("verbose", false, "show detailed information")

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
