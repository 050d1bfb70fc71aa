// Package main implements the presencewatch daemon, which polls Xbox Live
// presence for one identity and notifies on confirmed status changes.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	rootpkg "tools.zach/dev/presencewatch"
	"tools.zach/dev/presencewatch/internal/config"
	"tools.zach/dev/presencewatch/internal/logger"
	"tools.zach/dev/presencewatch/internal/metrics"
	"tools.zach/dev/presencewatch/internal/monitor"
	"tools.zach/dev/presencewatch/internal/notify"
	"tools.zach/dev/presencewatch/internal/paths"
	"tools.zach/dev/presencewatch/internal/xbl"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...". Without
// it, resolveVersion derives a "dev+<hash>" tag from the embedded VCS info.
var version = "dev"

// resolveVersion returns the build version string.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken returns a random token that marks the PID file as ours.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID locks the identity's PID file and writes "PID:TOKEN" into it.
// The returned handle holds the lock and must stay open until [removePID].
func writePID(dp DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(dp.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID unlocks and closes f, then deletes the PID file if it still
// carries token.
func removePID(dp DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dp.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(dp.PID())
	}
}

// checkStalePID reports whether another daemon holds the identity's PID
// lock. A file left behind by a dead daemon is removed.
func checkStalePID(dp DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(dp.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dp.PID())
		f.Close()
		parts := strings.SplitN(string(data), ":", 2)
		if p, convErr := strconv.Atoi(parts[0]); convErr == nil {
			return true, p
		}
		return true, 0
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dp.PID())
	return false, 0
}

// ///////////////////////////////////////////////
// Startup Helpers
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.presencewatch, or ./.presencewatch when the home
// directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// seedConfig writes the embedded default config to path if it is missing.
func seedConfig(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, rootpkg.DefaultConfigTOML, 0o600)
}

// loadConfig reads the config at path and applies the -identity override.
func loadConfig(path, identity string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if identity != "" && identity != cfg.Identity.Gamertag {
		cfg.Identity.Gamertag = identity
		cfg.Identity.XUID = ""
	}
	if cfg.IdentityName() == "" {
		return nil, errors.New("no identity configured: set identity.gamertag or pass -identity")
	}
	return cfg, nil
}

// newLogger builds the daemon logger from the [log] section.
func newLogger(cfg *config.Config, dp DataPaths, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	opts := logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		File:      cfg.Log.Enabled,
	}
	if cfg.Log.Console || !cfg.Log.Enabled {
		opts.Console = stderr
	}
	l, closer, err := logger.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return l.With("identity", cfg.IdentityName()), closer, nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, state, and logs")
	configPath := flag.String("config", "", "Config file (default <data-dir>/config.toml)")
	identity := flag.String("identity", "", "Gamertag to track (overrides identity.gamertag)")
	tail := flag.Int("tail", 0, "Print the last N log lines for the identity and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(paths.BinaryName, resolveVersion())
		return
	}
	os.Exit(run(*dataDir, *configPath, *identity, *tail))
}

// run starts the daemon and returns the process exit code.
func run(dataDir, cfgPath, identity string, tail int) int {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		return 1
	}
	if cfgPath == "" {
		cfgPath = filepath.Join(dataDir, paths.ConfigFile)
	}
	if err := seedConfig(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := loadConfig(cfgPath, identity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		return 1
	}
	dp := DataPaths{Root: dataDir, Identity: cfg.IdentityName()}

	if tail > 0 {
		out, err := logger.ReadTail(dp.Log(), tail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read log: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}

	if alive, pid := checkStalePID(dp); alive {
		fmt.Fprintf(os.Stderr, "daemon for %q already running (pid %d)\n", cfg.IdentityName(), pid)
		return 1
	}

	log, logCloser, err := newLogger(cfg, dp, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("presencewatch starting", "version", resolveVersion(), "data_dir", dp.Root, "config", cfgPath)

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		return 1
	}
	defer removePID(dp, token, pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := <-shutdownSignals()
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	reg, m := metrics.NewRegistry()
	if cfg.Metrics.Listen != "" {
		if err := metrics.Serve(ctx, cfg.Metrics.Listen, reg); err != nil {
			slog.Warn("metrics endpoint disabled", "listen", cfg.Metrics.Listen, "error", err)
		}
	}

	client := xbl.New(buildPollerConfig(cfg, dp))
	resolveCtx, resolveCancel := context.WithTimeout(ctx, cfg.APITimeout())
	xuid, err := client.ResolveXUID(resolveCtx)
	resolveCancel()
	if err != nil {
		slog.Error("cannot resolve XUID", "error", err)
		return 1
	}
	slog.Info("tracking identity", "gamertag", cfg.Identity.Gamertag, "xuid", xuid)

	dispatcher := &notify.Dispatcher{
		Identity: cfg.IdentityName(),
		Sinks:    buildSinks(cfg),
		Timeout:  notify.DefaultTimeout,
		Metrics:  m,
	}
	defer dispatcher.Close()

	engine := buildEngine(cfg, dp, client, dispatcher, m)

	watcher := config.NewWatcher(cfgPath)
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for config reloads")
	}

	commands := make(chan monitor.Command, 8)
	go forwardControl(ctx, controlSignals(), watcher.Events(), cfgPath, cfg.IntervalStep(), commands)

	err = engine.Run(ctx, commands)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("polling loop stopped", "error", err)
		return 1
	}
	slog.Info("presencewatch stopped")
	return 0
}
