// Package main provides the multitrack entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/app/session"
	"github.com/osa030/multitrack/internal/infra/audio"
	"github.com/osa030/multitrack/internal/infra/config"
	"github.com/osa030/multitrack/internal/infra/logger"
	"github.com/osa030/multitrack/internal/tui"
)

var (
	app        = kingpin.New("multitrack", "Arrange audio clips on a timeline and play them back")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file").String()

	// tui command (default)
	tuiCmd   = app.Command("tui", "Open the interactive timeline (default)").Default()
	tuiFiles = tuiCmd.Arg("files", "Audio files to upload on start").ExistingFiles()

	// play command
	playCmd      = app.Command("play", "Play files headless, one instance per FILE[@START_SEC]")
	playArgs    = playCmd.Arg("placements", "FILE[@START_SEC] placements").Required().Strings()
	playDuration = playCmd.Flag("duration", "Timeline duration in seconds").Float64()
)

// defaultTUILog keeps log lines off the alternate screen.
const defaultTUILog = "multitrack.log"

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
	}
	if loggerConfig.Output == "" {
		loggerConfig.Output = "stderr"
		if command == tuiCmd.FullCommand() {
			loggerConfig.Output = defaultTUILog
		}
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Run (defer ensures cleanup is called)
	if err := run(command, cfg); err != nil {
		zlog.Error().Msgf("multitrack error: %v", err)
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

// run executes the selected command. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(command string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := audio.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create audio backend: %w", err)
	}
	defer backend.Close()

	sessionMgr := session.NewManager(cfg, nil)
	defer sessionMgr.Close()

	up := &uploader{session: sessionMgr, backend: backend}

	switch command {
	case playCmd.FullCommand():
		placements, err := parsePlacements(*playArgs)
		if err != nil {
			return err
		}
		return runPlay(ctx, sessionMgr, up, placements, seconds(*playDuration))

	default:
		for _, path := range *tuiFiles {
			if _, err := up.upload(ctx, path); err != nil {
				zlog.Warn().Msgf("skipping %s: %v", path, err)
			}
		}
		return tui.NewApp(sessionMgr, func(path string) error {
			_, err := up.upload(ctx, path)
			return err
		}).Run()
	}
}
