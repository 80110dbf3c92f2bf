// Package main provides the entry point for the OpenDec compiler.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opendec/opendec/internal/compiler"
	"github.com/opendec/opendec/internal/gen"
)

// Fixed project layout, relative to the working directory.
const (
	binDir    = "bin"
	buildDir  = "build"
	exportDir = "export"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	persistCache bool
	engineName   string
	includeDirs  []string
	verbosity    int
	clean        bool
	jobs         int
	timeout      time.Duration
	redefine     string

	rootCmd = &cobra.Command{
		Use:   "opendec [SOURCES...]",
		Short: "Compile speech and sound sequences into audio",
		Long: paragraph(
			fmt.Sprintf("\nCompile %s sources into audio through an external speech engine.", keyword(".opendec")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			closer, err := setupLog(verbosity)
			if err != nil {
				return err
			}
			logCloser = closer
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// envOverrides are the environment knobs with no flag equivalent.
type envOverrides struct {
	EngineTimeout time.Duration `env:"OPENDEC_ENGINE_TIMEOUT"`
	Jobs          int           `env:"OPENDEC_JOBS"`
}

func validateOptions(cmd *cobra.Command) error {
	persistCache = viper.GetBool("cache")
	engineName = viper.GetString("engine")
	jobs = viper.GetInt("jobs")
	timeout = viper.GetDuration("timeout")
	redefine = viper.GetString("redefine")
	if dirs := viper.GetStringSlice("include"); !cmd.Flags().Changed("include") {
		includeDirs = dirs
	}

	overrides, err := env.ParseAs[envOverrides]()
	if err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	if overrides.EngineTimeout > 0 && !cmd.Flags().Changed("timeout") {
		timeout = overrides.EngineTimeout
	}
	if overrides.Jobs > 0 && !cmd.Flags().Changed("jobs") {
		jobs = overrides.Jobs
	}

	if engineName == "" {
		return fmt.Errorf("no engine configured - set one with --engine")
	}
	if _, err := gen.ParsePolicy(redefine); err != nil {
		return err
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	if clean {
		if err := compiler.Clean(buildDir, exportDir); err != nil {
			return err
		}
		fmt.Println("Cleaned", buildDir+string(os.PathSeparator), "and", exportDir+string(os.PathSeparator))
		return nil
	}

	policy, err := gen.ParsePolicy(redefine)
	if err != nil {
		return err
	}

	c, err := compiler.New(compiler.Config{
		Sources:       args,
		IncludeDirs:   includeDirs,
		BinDir:        binDir,
		BuildDir:      buildDir,
		ExportDir:     exportDir,
		Engine:        engineName,
		EngineTimeout: timeout,
		PersistCache:  persistCache,
		Jobs:          jobs,
		Redefine:      policy,
		Logger:        log.Default(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := c.Run(ctx)
	if err != nil {
		return err
	}
	report(result)
	if !result.Ok() {
		return fmt.Errorf("%d of %d jobs failed", result.Failed(), len(result.Jobs))
	}
	return nil
}

// report prints one line per job plus the run's cache totals.
func report(result *compiler.Result) {
	for _, job := range result.Jobs {
		switch {
		case job.Err != nil:
			fmt.Fprintf(os.Stderr, "%s: %v\n", job.Name, job.Err)
		case job.Hit:
			fmt.Printf("%s (cached) -> %s\n", job.Name, job.Artifact)
		default:
			fmt.Printf("%s -> %s\n", job.Name, job.Artifact)
		}
	}

	stats := result.CacheStats
	if stats.Hits+stats.Misses > 0 {
		log.Info("cache totals",
			"hits", stats.Hits,
			"misses", stats.Misses,
			"size", humanize.Bytes(uint64(max(stats.Bytes, 0))), //nolint:gosec
		)
	}
}

// logCloser releases the build log file, set once flags are parsed.
var logCloser = func() error { return nil }

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = logCloser()
		os.Exit(1)
	}
	_ = logCloser()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().BoolVarP(&persistCache, "cache", "c", false, "keep cache entries on disk across runs")
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "say", "engine binary under "+binDir+string(os.PathSeparator))
	rootCmd.Flags().StringArrayVarP(&includeDirs, "include", "I", nil, "search directory for imports and played assets (repeatable)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase logging (-v info, -vv debug)")
	rootCmd.Flags().BoolVar(&clean, "clean", false, "remove the build cache and exported artifacts")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "max concurrent jobs (0 = one per CPU)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "engine invocation timeout (0 = default)")
	rootCmd.Flags().StringVar(&redefine, "redefine", "warn", "alias redefinition policy: allow, warn, or error")

	_ = viper.BindPFlag("cache", rootCmd.Flags().Lookup("cache"))
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("include", rootCmd.Flags().Lookup("include"))
	_ = viper.BindPFlag("jobs", rootCmd.Flags().Lookup("jobs"))
	_ = viper.BindPFlag("timeout", rootCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("redefine", rootCmd.Flags().Lookup("redefine"))

	viper.SetDefault("engine", "say")
	viper.SetDefault("redefine", "warn")
	viper.SetDefault("jobs", 0)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "opendec")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "opendec")}, dirs...)
	}

	if c := os.Getenv("OPENDEC_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("opendec")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("opendec")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "opendec.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
