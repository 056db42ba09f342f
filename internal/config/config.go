// Package config provides configuration management for the toolkit build
// pipeline using Viper for loading from files, environment variables and
// command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the TOOLKIT_ prefix, defaults, and validation. It describes
// where the component sources live, which review-application stylesheets are
// compiled, where each build profile writes, and how watch mode behaves.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/logging"
)

type Config struct {
	Root         string             `mapstructure:"root" yaml:"root"`
	Product      string             `mapstructure:"product" yaml:"product"`
	Source       SourceConfig       `mapstructure:"source" yaml:"source"`
	Destinations DestinationsConfig `mapstructure:"destinations" yaml:"destinations"`
	Release      ReleaseConfig      `mapstructure:"release" yaml:"release"`
	Build        BuildConfig        `mapstructure:"build" yaml:"build"`
	Watch        WatchConfig        `mapstructure:"watch" yaml:"watch"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

type SourceConfig struct {
	Root              string             `mapstructure:"root" yaml:"root"`
	Library           string             `mapstructure:"library" yaml:"library"`
	ReviewStylesheets []StylesheetConfig `mapstructure:"review_stylesheets" yaml:"review_stylesheets"`
}

// StylesheetConfig declares a review-application stylesheet. PseudoClasses
// turns on companion-class expansion for interactive states.
type StylesheetConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	PseudoClasses bool   `mapstructure:"pseudo_classes" yaml:"pseudo_classes"`
}

type DestinationsConfig struct {
	Preview string `mapstructure:"preview" yaml:"preview"`
	Package string `mapstructure:"package" yaml:"package"`
	Release string `mapstructure:"release" yaml:"release"`
}

type ReleaseConfig struct {
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

type BuildConfig struct {
	Concurrency    int      `mapstructure:"concurrency" yaml:"concurrency"`
	SassCommand    string   `mapstructure:"sass_command" yaml:"sass_command"`
	Browsers       []string `mapstructure:"browsers" yaml:"browsers"`
	LegacyBrowsers []string `mapstructure:"legacy_browsers" yaml:"legacy_browsers"`
}

type WatchConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce"`
	CacheDir       string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	LiveReload     string        `mapstructure:"livereload" yaml:"livereload"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults.
const (
	DefaultProduct     = "toolkit"
	DefaultSourceRoot  = "src"
	DefaultLibrary     = "toolkit"
	DefaultManifest    = "package/package.json"
	DefaultSassCommand = "sass"
	DefaultDebounce    = 300 * time.Millisecond
	DefaultLiveReload  = "localhost:3000"
)

var (
	DefaultBrowsers       = []string{"chrome58", "edge16", "firefox57", "safari11"}
	DefaultLegacyBrowsers = []string{"ie8"}
)

// Load reads the current viper state into a validated Config.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		cerr := tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, "invalid configuration")
		cerr.Cause = err
		return nil, cerr
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Root == "" {
		config.Root = "."
	}
	if config.Product == "" {
		config.Product = DefaultProduct
	}
	if config.Source.Root == "" {
		config.Source.Root = DefaultSourceRoot
	}
	if config.Source.Library == "" {
		config.Source.Library = DefaultLibrary
	}
	if config.Destinations.Preview == "" {
		config.Destinations.Preview = "public"
	}
	if config.Destinations.Package == "" {
		config.Destinations.Package = "package"
	}
	if config.Destinations.Release == "" {
		config.Destinations.Release = "dist"
	}
	if config.Release.Manifest == "" {
		config.Release.Manifest = DefaultManifest
	}
	if config.Build.Concurrency == 0 {
		config.Build.Concurrency = 8
	}
	if config.Build.SassCommand == "" {
		config.Build.SassCommand = DefaultSassCommand
	}
	if len(config.Build.Browsers) == 0 {
		config.Build.Browsers = DefaultBrowsers
	}
	if len(config.Build.LegacyBrowsers) == 0 {
		config.Build.LegacyBrowsers = DefaultLegacyBrowsers
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}
	if config.Watch.CacheDir == "" {
		config.Watch.CacheDir = filepath.Join(xdg.CacheHome, "toolkit")
	}
	if config.Watch.LiveReload == "" {
		config.Watch.LiveReload = DefaultLiveReload
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = logging.FormatAuto
	}
}

// LibraryDir is the library directory relative to the project root.
func (c *Config) LibraryDir() string {
	return filepath.Join(c.Source.Root, c.Source.Library)
}

// Abs resolves a project-relative path against Root.
func (c *Config) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

var kebabName = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if !kebabName.MatchString(config.Product) {
		return fmt.Errorf("product %q must be kebab-case", config.Product)
	}

	paths := map[string]string{
		"source.root":          config.Source.Root,
		"source.library":       config.Source.Library,
		"destinations.preview": config.Destinations.Preview,
		"destinations.package": config.Destinations.Package,
		"destinations.release": config.Destinations.Release,
		"release.manifest":     config.Release.Manifest,
	}
	for key, path := range paths {
		if err := ValidatePath(path); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	for i, sheet := range config.Source.ReviewStylesheets {
		if err := ValidatePath(sheet.Path); err != nil {
			return fmt.Errorf("source.review_stylesheets[%d]: %w", i, err)
		}
		ext := filepath.Ext(sheet.Path)
		if ext != ".scss" && ext != ".css" {
			return fmt.Errorf("source.review_stylesheets[%d]: unsupported extension %q", i, ext)
		}
	}

	for key, dest := range map[string]string{
		"destinations.preview": config.Destinations.Preview,
		"destinations.package": config.Destinations.Package,
		"destinations.release": config.Destinations.Release,
	} {
		if err := config.CheckDestination(dest); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	if config.Build.Concurrency < 1 {
		return fmt.Errorf("build.concurrency must be at least 1, got %d", config.Build.Concurrency)
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch config.Log.Format {
	case logging.FormatAuto, logging.FormatJSON, logging.FormatText:
	default:
		return fmt.Errorf("log.format %q must be one of auto, json, text", config.Log.Format)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	return nil
}

// CheckDestination rejects a project-relative destination that equals,
// contains or sits inside a source directory. A destination is wiped
// before every build.
func (c *Config) CheckDestination(dest string) error {
	sources := []string{c.Source.Root, c.LibraryDir()}
	for _, sheet := range c.Source.ReviewStylesheets {
		sources = append(sources, filepath.Dir(sheet.Path))
	}

	for _, src := range sources {
		if overlaps(dest, src) {
			return fmt.Errorf("destination %s overlaps source directory %s", dest, src)
		}
	}
	return nil
}

func overlaps(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b || a == "." || b == "." {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}

// ValidatePath validates a project-relative path. Destinations are cleaned
// recursively, so they must stay inside the project root.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative: %s", path)
	}

	if cleanPath == "." || cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
