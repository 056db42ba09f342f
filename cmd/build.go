package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/toolkit/internal/build"
)

var (
	buildTask    string
	buildProfile profileFlag
	buildDest    string
	buildOutput  string
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run one build of the component library",
	Long: `Run the build pipeline once: clean the destination, compile stylesheets
and scripts, generate fixtures, copy static assets and, for releases, stamp
the version.

Any error stops the build and exits non-zero.

Examples:
  toolkit build                          # Preview profile into destinations.preview
  toolkit build --profile package        # npm package layout
  toolkit build --task release           # Same as --profile release
  toolkit build --dest out --output json # Custom destination, JSON report`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildTask, "task", "t", "", "task name (compile, preview, package, release)")
	addProfileFlag(buildCmd, &buildProfile, "build profile (preview, package, release); overrides --task")
	buildCmd.Flags().StringVarP(&buildDest, "dest", "d", "", "destination directory relative to the project root")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "table", "report format (table, json)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildOutput != "table" && buildOutput != "json" {
		return fmt.Errorf("unsupported output format: %s (supported: table, json)", buildOutput)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	layout, err := build.Resolve(cfg, build.Request{
		Task:    buildTask,
		Profile: buildProfile.profile,
		Dest:    buildDest,
	})
	if err != nil {
		return err
	}

	pipeline, err := build.FromConfig(afero.NewOsFs(), cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := pipeline.Run(ctx, layout)
	if report != nil {
		if err := printReport(cmd.OutOrStdout(), report, buildOutput); err != nil {
			return err
		}
	}
	return runErr
}

func printReport(w io.Writer, report *build.BuildReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tARTIFACTS\tDURATION")
	for _, stage := range report.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", stage.State, stage.Artifacts, stage.Duration.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%s build %s: %d artifacts in %s -> %s",
		report.Profile, report.State, len(report.Artifacts),
		report.Duration.Round(time.Millisecond), report.Destination)
	if report.Version != "" {
		summary += " (version " + report.Version + ")"
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}
