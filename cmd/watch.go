package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/toolkit/internal/build"
	"github.com/conneroisu/toolkit/internal/config"
	"github.com/conneroisu/toolkit/internal/hashcache"
	"github.com/conneroisu/toolkit/internal/livereload"
	"github.com/conneroisu/toolkit/internal/types"
	"github.com/conneroisu/toolkit/internal/watcher"
)

var (
	watchProfile    profileFlag
	watchDest       string
	watchLiveReload string
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild the library whenever its sources change",
	Long: `Run a full build, then watch the library and review stylesheets and
re-run only the stages a change affects. Build errors are logged and the
watcher keeps running; configuration and filesystem errors stop it.

Browsers connected to the live reload endpoint are told about every
successful rebuild. Pass --livereload off to disable it.

Examples:
  toolkit watch                          # Preview profile with live reload
  toolkit watch --profile package        # Keep the package layout up to date
  toolkit watch --livereload :35729      # Live reload on another address`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addProfileFlag(watchCmd, &watchProfile, "build profile (preview, package)")
	watchCmd.Flags().StringVarP(&watchDest, "dest", "d", "", "destination directory relative to the project root")
	watchCmd.Flags().StringVar(&watchLiveReload, "livereload", "", "live reload listen address, or off (default from watch.livereload)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	profile := watchProfile.profile
	if profile == "" {
		profile = types.ProfilePreview
	}
	layout, err := build.Resolve(cfg, build.Request{Profile: profile, Dest: watchDest})
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
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var opts []build.SessionOption

	cache, err := hashcache.Open(cfg.Watch.CacheDir)
	if err != nil {
		logger.Warn(ctx, err, "Content hash cache unavailable, every event triggers a rebuild")
	} else {
		defer cache.Close()
		opts = append(opts, build.WithContentCache(cache))
	}

	addr := cfg.Watch.LiveReload
	if watchLiveReload != "" {
		addr = watchLiveReload
	}
	if addr != "off" {
		hub := livereload.NewHub(cfg.Watch.AllowedOrigins, logger)
		opts = append(opts, build.WithReload(func(stage build.State, paths []string) {
			hub.Reload(string(stage), paths)
		}))
		go func() {
			if err := livereload.Serve(ctx, addr, hub); err != nil {
				cancel(fmt.Errorf("live reload server: %w", err))
			}
		}()
	}

	session, err := build.NewSession(pipeline, layout, opts...)
	if err != nil {
		return err
	}
	if _, err := session.Start(ctx); err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Stop()

	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(watcher.NoEditorFilter)
	fw.AddFilter(watcher.NoTestFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		if err := session.HandleChanges(ctx, watcher.Paths(events)); err != nil {
			cancel(err)
			return err
		}
		return nil
	})

	for _, dir := range watchRoots(cfg) {
		if err := fw.AddRecursive(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	if err := fw.Start(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "Watching for changes", "profile", string(layout.Profile), "destination", layout.Root)

	<-ctx.Done()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	stats := session.Metrics().GetSnapshot()
	logger.Info(context.Background(), "Watch stopped",
		"runs", stats.TotalRuns, "failed", stats.FailedRuns, "suppressed", stats.Suppressed)
	return nil
}

// watchRoots lists the directories whose changes can affect a build: the
// library and the directory of every review stylesheet outside it.
func watchRoots(cfg *config.Config) []string {
	library := cfg.Abs(cfg.LibraryDir())
	roots := []string{library}
	seen := map[string]bool{library: true}

	for _, sheet := range cfg.Source.ReviewStylesheets {
		dir := filepath.Dir(cfg.Abs(sheet.Path))
		if rel, err := filepath.Rel(library, dir); err == nil && rel != ".." &&
			!strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	return roots
}
