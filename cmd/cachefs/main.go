package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"cachefs/internal/cache"
	"cachefs/internal/config"
	"cachefs/internal/fs"
	"cachefs/internal/logging"
	"cachefs/internal/metrics"

	"github.com/spf13/pflag"
)

var (
	logger = logging.GetLogger()
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err == pflag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	} else {
		logger.Warn("Unknown log level %q, keeping %s", cfg.LogLevel, logger.Level())
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Starting cachefs...")
	logger.Debug("Remote directory: %s", cfg.RemoteDir)
	logger.Debug("Cache directory: %s", cfg.CacheDir)
	logger.Debug("Mount point: %s", cfg.MountPoint)
	logger.Debug("Write mode: %s, metadata cache: %v", cfg.WriteMode, cfg.MetadataCache)

	engine, err := cache.NewEngine(cache.Options{
		RemoteDir:     cfg.RemoteDir,
		CacheDir:      cfg.CacheDir,
		WriteMode:     cfg.WriteMode,
		MetadataCache: cfg.MetadataCache,
	})
	if err != nil {
		logger.Error("Failed to create cache engine: %v", err)
		logger.Sync()
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Serving metrics on %s", cfg.MetricsAddr)
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	cfs := fs.NewCacheFS(engine, cfg.MetadataCache)
	mountPoint := filepath.Clean(cfg.MountPoint)

	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)

	exitCode := 0
	logger.Debug("Starting FUSE server...")
	go func() {
		defer wg.Done()
		if err := cfs.Serve(mountPoint); err != nil {
			logger.Error("FUSE server error: %v", err)
			exitCode = 1
		}
	}()

	// Wait for signal
	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v", sig)
		if err := cfs.Unmount(mountPoint); err != nil {
			logger.Error("Unmount error: %v", err)
		}
	}()

	wg.Wait()

	for _, rel := range engine.DirtyPaths() {
		logger.Warn("Unsynchronized changes remain in cache: %s", rel)
	}
	if err := engine.Close(); err != nil {
		logger.Error("Failed to close open handles: %v", err)
	}

	logger.Info("Clean shutdown complete")
	logger.Sync()
	os.Exit(exitCode)
}

// parseArgs builds the mount configuration from a config file, positional
// arguments and flags, in increasing order of precedence.
func parseArgs(args []string) (*config.Config, error) {
	var (
		writeMode   string
		metadata    bool
		configPath  string
		logLevel    string
		metricsAddr string
	)

	flagSet := pflag.NewFlagSet("cachefs", pflag.ContinueOnError)
	flagSet.StringVar(&writeMode, "write-mode", string(config.WriteImmediate),
		"when changes reach the remote: immediate-sync or deferred-sync")
	flagSet.BoolVar(&metadata, "metadata-cache", false, "let the kernel cache file attributes")
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&logLevel, "log-level", "info", "error, warn, info, debug or trace (overrides LOG_LEVEL, FUSE_DEBUG and the config file)")
	flagSet.StringVar(&metricsAddr, "metrics-addr", "", "listen address for the Prometheus /metrics endpoint")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	positional := flagSet.Args()
	switch {
	case len(positional) == 3:
		cfg.RemoteDir, cfg.CacheDir, cfg.MountPoint = positional[0], positional[1], positional[2]
	case len(positional) == 0 && configPath != "":
	default:
		printHelp(flagSet)
		return nil, fmt.Errorf("expected REMOTE_DIR CACHE_DIR MOUNTPOINT, got %d arguments", len(positional))
	}

	if flagSet.Changed("write-mode") {
		mode, err := config.ParseWriteMode(writeMode)
		if err != nil {
			return nil, err
		}
		cfg.WriteMode = mode
	}
	if flagSet.Changed("metadata-cache") {
		cfg.MetadataCache = metadata
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	} else if env := envLogLevel(); env != "" {
		cfg.LogLevel = env
	}
	if flagSet.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}

	return cfg, nil
}

// envLogLevel returns the level requested through the environment, matching
// what the default logger applies at startup.
func envLogLevel() string {
	if os.Getenv("FUSE_DEBUG") != "" {
		return "debug"
	}
	return os.Getenv("LOG_LEVEL")
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `cachefs mounts REMOTE_DIR at MOUNTPOINT, keeping a local copy of every
file it touches in CACHE_DIR.

Usage:
  cachefs [flags] REMOTE_DIR CACHE_DIR MOUNTPOINT
  cachefs --config FILE [flags]

Log level precedence: --log-level, then FUSE_DEBUG (debug), then LOG_LEVEL,
then log_level from the config file, then info.

Flags:
%s`, flagSet.FlagUsages())
}
