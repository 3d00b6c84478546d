package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/cv-intake/internal/auth"
	"github.com/zombor/cv-intake/internal/extract"
	"github.com/zombor/cv-intake/internal/intake"
	"github.com/zombor/cv-intake/internal/remote"
	"github.com/zombor/cv-intake/internal/scanning"
	"github.com/zombor/cv-intake/internal/upload"
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

	// A missing .env file is fine; the environment and flags still apply
	_ = godotenv.Load()

	fs := ff.NewFlagSet("cv-intake")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "cv-intake.db", "Database file path")
		storagePath = fs.StringLong("storage", "./documents", "Directory original documents are kept in")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")

		clientID     = fs.StringLong("client-id", "", "OAuth client ID")
		clientSecret = fs.StringLong("client-secret", "", "OAuth client secret")
		refreshToken = fs.StringLong("refresh-token", "", "OAuth refresh token (a token rotated through the API takes precedence)")
		tokenURL     = fs.StringLong("token-url", auth.GoogleTokenURL, "OAuth token endpoint")

		storeType     = fs.StringLong("store", "drive", "Remote store: 'drive' or 'gcs'")
		parentID      = fs.StringLong("parent-id", "", "Drive folder (or GCS prefix) batch containers are created in")
		bucket        = fs.StringLong("bucket", "", "GCS bucket, required with --store=gcs")
		driveEndpoint = fs.StringLong("drive-endpoint", "", "Drive API endpoint override")
		driveUpload   = fs.StringLong("drive-upload-url", remote.DefaultDriveUploadURL, "Drive multipart upload URL")
		gcsEndpoint   = fs.StringLong("gcs-endpoint", "", "Cloud Storage endpoint override")
		shareWith     = fs.StringLong("share-with", "", "Email given writer access to every batch container (optional)")

		concurrency     = fs.IntLong("concurrency", 1, "Parallel uploads per batch")
		itemDelay       = fs.DurationLong("item-delay", 0, "Minimum gap between upload starts")
		chunkSize       = fs.IntLong("chunk-size", 0, "Uploads per chunk before pausing (0 disables)")
		chunkPause      = fs.DurationLong("chunk-pause", 0, "Pause between chunks")
		callTimeout     = fs.DurationLong("call-timeout", 60*time.Second, "Timeout for each remote call")
		permissionDelay = fs.DurationLong("permission-delay", 0, "Wait between an upload and sharing it")
		retryAttempts   = fs.IntLong("retry-attempts", 1, "Attempts for rate-limited uploads (1 disables retries)")
		retryInitial    = fs.DurationLong("retry-initial", time.Second, "First retry pause")
		retryMax        = fs.DurationLong("retry-max", 30*time.Second, "Longest retry pause")

		scannerType = fs.StringLong("scanner", "none", "Contact scanner for fields the heuristics miss: 'none', 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llama3.2", "Ollama model name")

		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CV_INTAKE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("Invalid log level", "level", *logLevel, "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Initializing database...")
	db, err := intake.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := intake.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var scanner scanning.Scanner
	switch *scannerType {
	case "none":
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer scanner.Close()
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		defer scanner.Close()
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "none, gemini or ollama")
		os.Exit(1)
	}

	var connector remote.Connector
	switch *storeType {
	case "drive":
		connector = remote.NewDriveConnector(remote.DriveConfig{
			Endpoint:  *driveEndpoint,
			UploadURL: *driveUpload,
		})
	case "gcs":
		if *bucket == "" {
			slog.Error("A bucket is required with the gcs store. Set --bucket or CV_INTAKE_BUCKET")
			os.Exit(1)
		}
		connector = remote.NewGCSConnector(remote.GCSConfig{Bucket: *bucket, Endpoint: *gcsEndpoint})
	default:
		slog.Error("Invalid store type", "type", *storeType, "valid", "drive or gcs")
		os.Exit(1)
	}

	// Missing OAuth settings only fail a batch, so the server still starts
	provider := auth.NewProvider(auth.Config{
		Credentials: auth.Credentials{
			ClientID:     *clientID,
			ClientSecret: *clientSecret,
			RefreshToken: *refreshToken,
		},
		TokenURL: *tokenURL,
		Store:    db,
	})
	if *clientID == "" || *clientSecret == "" {
		slog.Warn("OAuth client is not configured; uploads will fail until it is")
	}

	orchestrator := upload.NewOrchestrator(provider, connector, upload.Options{
		ParentID:        *parentID,
		Concurrency:     *concurrency,
		ItemDelay:       *itemDelay,
		ChunkSize:       *chunkSize,
		ChunkPause:      *chunkPause,
		CallTimeout:     *callTimeout,
		PermissionDelay: *permissionDelay,
		Backoff: upload.BackoffPolicy{
			MaxAttempts: *retryAttempts,
			Initial:     *retryInitial,
			Max:         *retryMax,
			Multiplier:  2,
		},
		ShareWith: *shareWith,
	})

	service := intake.NewService(db, store, extract.New(scanner), orchestrator, provider)
	server := intake.NewServer(service, intake.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version, "store", *storeType)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
