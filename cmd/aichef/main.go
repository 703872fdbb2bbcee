package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/confirm"
	"github.com/teamalpha/aichef/internal/ingredient"
	"github.com/teamalpha/aichef/internal/recognition"
	"github.com/teamalpha/aichef/internal/scan"
	"github.com/teamalpha/aichef/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("aichef")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "aichef.db", "Database file path")
		listName        = fs.StringLong("list", ingredient.DefaultList, "Name of the ingredient list to use")
		gatewayType     = fs.StringLong("gateway", "gemini", "Recognition gateway: 'gemini' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", recognition.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		classifyTimeout = fs.DurationLong("classify-timeout", scan.DefaultClassifyTimeout, "Timeout for a single recognition call")
		deviceType      = fs.StringLong("device", "push", "Frame device: 'push' (frames uploaded over HTTP), 'replay' or 'watch'")
		replayDir       = fs.StringLong("replay-dir", "./frames", "Directory of images replayed by the 'replay' device")
		replayInterval  = fs.DurationLong("replay-interval", camera.DefaultReplayInterval, "Delay between replayed frames")
		watchDir        = fs.StringLong("watch-dir", "./inbox", "Directory watched for new photos by the 'watch' device")
		autoConfirm     = fs.StringLong("auto-confirm", "", "Answer confirmations automatically: 'accept' or 'reject' (default: ask over HTTP)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel        = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion     = fs.BoolLong("version", "Show version information")
		_               = fs.StringLong("config", "", "Config file (key value per line)")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AICHEF"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath, "list", *listName)
	store, err := ingredient.NewBoltStore(*dbPath, *listName)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ledger, err := ingredient.NewLedgerFromStore(store, logger)
	if err != nil {
		slog.Error("Failed to load ingredient list", "error", err)
		os.Exit(1)
	}
	slog.Info("Ingredient list loaded", "count", ledger.Len())

	// Initialize gateway based on type
	var gateway recognition.Gateway
	switch *gatewayType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini gateway...", "model", *geminiModel)
		gateway, err = recognition.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama gateway...", "url", *ollamaURL, "model", *ollamaModel)
		gateway, err = recognition.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid gateway type", "type", *gatewayType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer gateway.Close()

	// Confirmation gate
	var (
		gate  confirm.Gate
		queue *confirm.Queue
	)
	switch *autoConfirm {
	case "":
		queue = confirm.NewQueue()
		queue.OnRequest(func(req confirm.Request) {
			slog.Info("Confirmation requested", "id", req.ID, "label", req.Label, "origin", req.Origin)
		})
		defer queue.Close()
		gate = queue
	case "accept":
		gate = confirm.AutoGate{Decision: confirm.Accept}
	case "reject":
		gate = confirm.AutoGate{Decision: confirm.Reject}
	default:
		slog.Error("Invalid auto-confirm value", "value", *autoConfirm, "valid", "accept, reject or empty")
		os.Exit(1)
	}

	// Frame device
	var (
		device     camera.Device
		pushDevice *camera.PushDevice
	)
	switch *deviceType {
	case "push":
		pushDevice = camera.NewPushDevice()
		device = pushDevice
	case "replay":
		device = camera.NewReplayDevice(*replayDir, *replayInterval, logger)
	case "watch":
		device = camera.NewWatchDevice(*watchDir, logger)
	default:
		slog.Error("Invalid device type", "type", *deviceType, "valid", "push, replay or watch")
		os.Exit(1)
	}

	pipeline := scan.NewPipeline(gateway, ledger, gate, scan.Config{
		ClassifyTimeout: *classifyTimeout,
		Logger:          logger,
	})
	defer pipeline.Close()

	source := camera.NewSource(device, logger)
	pipeline.Attach(source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing camera leaves manual entry and the list usable
	if err := source.Start(ctx); err != nil {
		slog.Error("Camera unavailable, continuing without scanning", "device", *deviceType, "error", err)
	}
	defer source.Stop()

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(server.Deps{
		Pipeline: pipeline,
		Ledger:   ledger,
		Queue:    queue,
		Source:   source,
		Device:   pushDevice,
	}, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := srv.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		stop()
		return
	}

	slog.Info("Shutting down...")
}
