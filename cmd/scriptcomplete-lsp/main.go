package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"io"
	stlog "log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"runtime"

	"github.com/shehackedyou/scriptcomplete"
)

// App version (set via linker flags -ldflags="-X main.appVersion=...")
var appVersion = "dev"

func main() {
	logFilePath := flag.String("log-file", "scriptcomplete-lsp.log", "File that receives a copy of the server log")
	logLevelFlag := flag.String("log-level", "", "Log level (debug, info, warn, error) - overrides config")
	debugAddr := flag.String("debug-addr", "localhost:6061", "Address for the pprof/expvar server, empty to disable")
	flag.Parse()

	logFile, err := os.OpenFile(*logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		stlog.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	logWriter := io.MultiWriter(os.Stderr, logFile)

	// --- Setup Temporary Logger for Initialization ---
	tempLogger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelInfo}))

	completer, initErr := scriptcomplete.NewCompleter(tempLogger)
	if initErr != nil {
		tempLogger.Error("Failed to initialize completion service", "error", initErr)
		if !errors.Is(initErr, scriptcomplete.ErrConfig) {
			os.Exit(1)
		}
		if completer == nil {
			tempLogger.Error("Completer initialization returned nil unexpectedly, exiting.")
			os.Exit(1)
		}
	}
	defer func() {
		slog.Info("Closing completion service...")
		if err := completer.Close(); err != nil {
			slog.Error("Error closing completer", "error", err)
		}
	}()

	// --- Setup Global Logger ---
	// The level lives in a LevelVar so workspace/didChangeConfiguration can adjust it.
	initialConfig := completer.GetCurrentConfig()
	chosenLevel := initialConfig.LogLevel
	if *logLevelFlag != "" {
		chosenLevel = *logLevelFlag
	}
	logLevel, parseLevelErr := scriptcomplete.ParseLogLevel(chosenLevel)
	if parseLevelErr != nil {
		logLevel = slog.LevelInfo
		tempLogger.Warn("Invalid log level, using default 'info'", "level", chosenLevel, "error", parseLevelErr)
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(logLevel)
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: levelVar, AddSource: true}))
	slog.SetDefault(logger)

	slog.Info("ScriptComplete LSP server starting...", "version", appVersion, "log_level", logLevel.String())
	if initErr != nil {
		slog.Warn("Completer initialized with configuration warnings", "error", initErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if initialConfig.WatchBindings && completer.BindingsPath() != "" {
		go func() {
			if err := completer.WatchBindings(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Bindings watcher stopped", "error", err)
			}
		}()
	}

	// --- Setup Profiling & Metrics ---
	if *debugAddr != "" {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(1)
		startDebugServer(*debugAddr)
	}

	lspServer := scriptcomplete.NewServer(completer, logger, levelVar, appVersion)
	lspServer.Run(os.Stdin, os.Stdout)

	if !lspServer.ShutdownRequested() {
		slog.Warn("Connection closed without a shutdown request")
	}
	slog.Info("LSP server has shut down.")
}

// startDebugServer starts the HTTP server for pprof and expvar.
func startDebugServer(addr string) {
	go func() {
		slog.Info("Starting debug server for pprof/expvar", "addr", addr)
		debugMux := http.NewServeMux()
		debugMux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/vars", expvar.Handler().ServeHTTP)
		if err := http.ListenAndServe(addr, debugMux); err != nil {
			slog.Error("Debug server failed", "error", err)
		}
	}()
}
