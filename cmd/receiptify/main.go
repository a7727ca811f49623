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
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receiptify/internal/codes"
	"github.com/zombor/receiptify/internal/ocr"
	"github.com/zombor/receiptify/internal/pipeline"
	"github.com/zombor/receiptify/internal/server"
	"github.com/zombor/receiptify/internal/structuring"
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

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded .env file")
	}

	fs := ff.NewFlagSet("receiptify")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		ocrBackend    = fs.StringLong("ocr", "vision", "Text recognizer: 'vision' or 'tesseract'")
		visionCreds   = fs.StringLong("vision-credentials", "", "Service account JSON for Cloud Vision (default: application default credentials)")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Path to the tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		generatorType = fs.StringLong("generator", "gemini", "Structured output generator: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", structuring.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		fallbackDate  = fs.StringLong("fallback-date", structuring.DefaultFallbackDate, "receiptDate used when a receipt has no readable date (YYYY-MM-DD)")
		callTimeout   = fs.DurationLong("call-timeout", pipeline.DefaultCallTimeout, "Timeout for each OCR or model call")
		maxUploadMB   = fs.IntLong("max-upload-mb", int(server.DefaultMaxUploadSize>>20), "Maximum upload size in megabytes")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTIFY"),
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

	ctx := context.Background()

	// Initialize text recognizer
	var recognizer ocr.TextRecognizer
	var err error
	switch *ocrBackend {
	case "vision":
		slog.Info("Initializing Cloud Vision...")
		recognizer, err = ocr.NewVision(ctx, *visionCreds)
	case "tesseract":
		slog.Info("Initializing tesseract...", "binary", *tesseractBin, "lang", *tesseractLang)
		recognizer, err = ocr.NewTesseract(*tesseractBin, *tesseractLang)
	default:
		slog.Error("Invalid OCR backend", "ocr", *ocrBackend, "valid", "vision or tesseract")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize OCR", "ocr", *ocrBackend, "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	// Initialize generator based on type
	var generator structuring.Generator
	switch *generatorType {
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
		slog.Info("Initializing Gemini...", "model", *geminiModel)
		generator, err = structuring.NewGemini(ctx, apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *ollamaURL, "model", *ollamaModel)
		generator, err = structuring.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid generator type", "generator", *generatorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize generator", "generator", *generatorType, "error", err)
		os.Exit(1)
	}
	defer generator.Close()

	engine, err := structuring.NewEngine(generator, *fallbackDate)
	if err != nil {
		slog.Error("Failed to initialize structuring engine", "error", err)
		os.Exit(1)
	}

	p := pipeline.New(recognizer, codes.NewDetector(), engine, *callTimeout)

	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(p, basicAuth, int64(*maxUploadMB)<<20)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
