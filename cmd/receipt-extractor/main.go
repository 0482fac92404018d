package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
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

	defaults := extraction.DefaultConfig()

	fs := ff.NewFlagSet("receipt-extractor")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "receipt-extractor.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./receipts", "Storage directory path")
		recognizerType = fs.StringLong("recognizer", "tesseract", "Recognizer: 'tesseract', 'gemini' or 'ollama'")
		tessLanguages  = fs.StringLong("tesseract-langs", "eng", "Tesseract languages joined with '+' (e.g. eng+deu)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		maxMB          = fs.IntLong("max-image-mb", int(defaults.MaxImageBytes>>20), "Largest accepted upload in megabytes")
		allowHEIC      = fs.BoolLong("allow-heic", "Accept HEIC/HEIF uploads")
		allowPDF       = fs.BoolLong("allow-pdf", "Accept single-page PDF uploads")
		timeout        = fs.DurationLong("recognition-timeout", defaults.RecognitionTimeout, "Time limit for one recognition")
		concurrency    = fs.IntLong("max-concurrent", int(defaults.MaxConcurrentRecognitions), "Maximum concurrent recognitions")
		threshold      = fs.Float64Long("review-threshold", defaults.ReviewThreshold, "Confidence below which a draft needs review")
		dateOrder      = fs.StringLong("date-order", string(defaults.DateOrder), "Order for ambiguous numeric dates: MDY or DMY")
		timezone       = fs.StringLong("timezone", "Local", "Time zone used to decide today's date")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		inputFile      = fs.StringLong("file", "", "Extract a single image and print the result instead of serving")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_EXTRACTOR"),
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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	location, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}

	cfg := defaults
	cfg.MaxImageBytes = int64(*maxMB) << 20
	cfg.AllowHEIC = *allowHEIC
	cfg.AllowPDF = *allowPDF
	cfg.RecognitionTimeout = *timeout
	cfg.MaxConcurrentRecognitions = int64(*concurrency)
	cfg.ReviewThreshold = *threshold
	cfg.DateOrder = extraction.DateOrder(strings.ToUpper(*dateOrder))
	cfg.Location = location

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize recognizer based on type
	var recognizer scanning.Recognizer
	switch *recognizerType {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "languages", *tessLanguages)
		recognizer, err = newTesseract(*tessLanguages)
		if err != nil {
			slog.Error("Failed to initialize Tesseract", "error", err)
			os.Exit(1)
		}
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
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		recognizer, err = scanning.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid recognizer type", "type", *recognizerType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer recognizer.Close()

	engine, err := extraction.NewEngine(recognizer, cfg, extraction.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("Failed to initialize extraction engine", "error", err)
		os.Exit(1)
	}

	if *inputFile != "" {
		if err := extractFile(ctx, engine, *inputFile); err != nil {
			slog.Error("Failed to extract receipt", "file", *inputFile, "error", err)
			fmt.Fprintln(os.Stderr, extraction.UserMessage(err, cfg))
			os.Exit(1)
		}
		return
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	receiptService := receipt.NewService(db, engine, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

// extractFile runs one image through the engine and prints the result as JSON
func extractFile(ctx context.Context, engine *extraction.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	res, err := engine.Extract(ctx, extraction.Upload{
		Data:        data,
		ContentType: mimetype.Detect(data).String(),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
