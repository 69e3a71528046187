// Package cli implements the one-shot terminal commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/app"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/capture"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/forms"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/onboarding"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

var Version = "dev"

// loadApp assembles the pipeline for a one-shot command.
func loadApp(logger *zap.Logger) *app.App {
	cfg, err := config.Load("", "")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger, Version)
	if err != nil {
		fmt.Printf("Error initializing pipeline: %v\n", err)
		os.Exit(1)
	}
	return application
}

// HandleExtractCommand runs OCR over one image file.
func HandleExtractCommand(args []string) {
	imagePath := ""
	provider := ""
	jsonOut := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-i", "--image":
			if i+1 < len(args) {
				imagePath = args[i+1]
				i++
			}
		case "-p", "--provider":
			if i+1 < len(args) {
				provider = args[i+1]
				i++
			}
		case "--json":
			jsonOut = true
		case "-h", "--help":
			PrintExtractHelp()
			return
		}
	}

	if imagePath == "" {
		fmt.Println("Error: Image file is required")
		fmt.Println("Usage: docproc extract -i <image> [-p <provider>] [--json]")
		os.Exit(1)
	}

	img, err := readImageFile(imagePath)
	if err != nil {
		fmt.Printf("Error reading image: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	application := loadApp(logger)
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	resp, err := application.Service.ExtractText(ctx, ai.ExtractInput{
		ImageDataURL:      img.DataURL(),
		PreferredProvider: provider,
	})
	if err != nil {
		fmt.Printf("❌ Extraction failed: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		printJSON(resp)
		return
	}
	fmt.Print(renderMarkdown(extractReport(filepath.Base(imagePath), resp)))
}

// HandleAnalyzeCommand classifies already-extracted text.
func HandleAnalyzeCommand(args []string) {
	textPath := ""
	inline := ""
	provider := ""
	jsonOut := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-i", "--input":
			if i+1 < len(args) {
				textPath = args[i+1]
				i++
			}
		case "--text":
			if i+1 < len(args) {
				inline = args[i+1]
				i++
			}
		case "-p", "--provider":
			if i+1 < len(args) {
				provider = args[i+1]
				i++
			}
		case "--json":
			jsonOut = true
		case "-h", "--help":
			PrintAnalyzeHelp()
			return
		}
	}

	text := inline
	if textPath != "" {
		data, err := os.ReadFile(textPath)
		if err != nil {
			fmt.Printf("Error reading text file: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("Error: Text is required")
		fmt.Println("Usage: docproc analyze -i <textfile> | --text \"...\" [-p <provider>] [--json]")
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	application := loadApp(logger)
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := application.Service.AnalyzeDocument(ctx, ai.AnalyzeInput{
		Text:              text,
		PreferredProvider: provider,
	})
	if err != nil {
		fmt.Printf("❌ Analysis failed: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		printJSON(resp)
		return
	}
	fmt.Print(renderMarkdown(analysisReport(resp)))
}

// HandleProcessCommand runs the full pipeline over one image and records the
// document in the store.
func HandleProcessCommand(args []string) {
	imagePath := ""
	provider := ""
	jsonOut := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-i", "--image":
			if i+1 < len(args) {
				imagePath = args[i+1]
				i++
			}
		case "-p", "--provider":
			if i+1 < len(args) {
				provider = args[i+1]
				i++
			}
		case "--json":
			jsonOut = true
		case "-h", "--help":
			PrintProcessHelp()
			return
		}
	}

	if imagePath == "" {
		fmt.Println("Error: Image file is required")
		fmt.Println("Usage: docproc process -i <image> [-p <provider>] [--json]")
		os.Exit(1)
	}

	img, err := readImageFile(imagePath)
	if err != nil {
		fmt.Printf("Error reading image: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	application := loadApp(logger)
	defer application.Close()

	doc := &store.Document{
		Filename:  filepath.Base(imagePath),
		MimeType:  img.MimeType,
		SizeBytes: int64(len(img.Data)),
		Source:    "cli",
		Status:    store.StatusProcessing,
	}
	if err := application.Store.CreateDocument(doc); err != nil {
		logger.Warn("Failed to record document", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	resp, err := application.Service.ProcessDocument(ctx, ai.ExtractInput{
		ImageDataURL:      img.DataURL(),
		PreferredProvider: provider,
	})
	if err != nil {
		if doc.ID != "" {
			application.Store.UpdateDocumentStatus(doc.ID, store.StatusFailed, err.Error())
		}
		fmt.Printf("❌ Processing failed: %v\n", err)
		os.Exit(1)
	}

	if doc.ID != "" {
		if _, err := application.Store.RecordExtraction(doc.ID, &resp.Extract); err != nil {
			logger.Warn("Failed to record extraction", zap.Error(err))
		}
		if _, err := application.Store.RecordAnalysis(doc.ID, &resp.Analyze); err != nil {
			logger.Warn("Failed to record analysis", zap.Error(err))
		}
		application.Store.UpdateDocumentStatus(doc.ID, store.StatusProcessed, "")
	}

	if jsonOut {
		printJSON(resp)
		return
	}
	fmt.Print(renderMarkdown(processReport(filepath.Base(imagePath), resp)))
	if doc.ID != "" {
		fmt.Printf("\n✓ Saved as document %s\n", doc.ID)
	}
}

// HandleProvidersCommand shows the ladder and probes availability.
func HandleProvidersCommand(args []string) {
	jsonOut := false
	for _, arg := range args {
		switch arg {
		case "--json":
			jsonOut = true
		case "-h", "--help":
			fmt.Println("Usage: docproc providers [--json]")
			return
		}
	}

	logger := zap.NewNop()
	application := loadApp(logger)
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	statuses := application.Service.ListProviderAvailability(ctx)

	if jsonOut {
		printJSON(statuses)
		return
	}
	fmt.Println(providersTable(statuses))
}

// HandleCaptureCommand screenshots a web page, optionally running the
// pipeline over the result.
func HandleCaptureCommand(args []string) {
	url := ""
	output := ""
	waitFor := ""
	viewportOnly := false
	textOnly := false
	process := false
	jsonOut := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o", "--output":
			if i+1 < len(args) {
				output = args[i+1]
				i++
			}
		case "--wait":
			if i+1 < len(args) {
				waitFor = args[i+1]
				i++
			}
		case "--viewport":
			viewportOnly = true
		case "--text":
			textOnly = true
		case "--process":
			process = true
		case "--json":
			jsonOut = true
		case "-h", "--help":
			PrintCaptureHelp()
			return
		default:
			if url == "" && !strings.HasPrefix(args[i], "-") {
				url = args[i]
			}
		}
	}

	if url == "" {
		fmt.Println("Error: URL is required")
		fmt.Println("Usage: docproc capture <url> [-o <file>] [--process]")
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	application := loadApp(logger)
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	if textOnly {
		captureText(ctx, application, url, waitFor, process, jsonOut)
		return
	}

	img, err := application.Capturer.Page(ctx, url, capture.Options{
		WaitFor:      waitFor,
		ViewportOnly: viewportOnly,
	})
	if err != nil {
		fmt.Printf("❌ Capture failed: %v\n", err)
		os.Exit(1)
	}

	if output == "" {
		output = "capture.png"
	}
	if err := os.WriteFile(output, img.Data, 0644); err != nil {
		fmt.Printf("Error writing screenshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Screenshot saved to: %s (%d bytes)\n", output, len(img.Data))

	if !process {
		return
	}

	resp, err := application.Service.ProcessDocument(ctx, ai.ExtractInput{ImageDataURL: img.DataURL()})
	if err != nil {
		fmt.Printf("❌ Processing failed: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		printJSON(resp)
		return
	}
	fmt.Print(renderMarkdown(processReport(url, resp)))
}

// captureText reads the rendered text of a page instead of screenshotting
// it, skipping OCR entirely for script-generated pages.
func captureText(ctx context.Context, application *app.App, url, waitFor string, process, jsonOut bool) {
	text, err := application.Capturer.Text(ctx, url, waitFor)
	if err != nil {
		fmt.Printf("❌ Capture failed: %v\n", err)
		os.Exit(1)
	}

	if !process {
		fmt.Println(text)
		return
	}

	resp, err := application.Service.AnalyzeDocument(ctx, ai.AnalyzeInput{Text: text})
	if err != nil {
		fmt.Printf("❌ Analysis failed: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		printJSON(resp)
		return
	}
	fmt.Print(renderMarkdown(analysisReport(resp)))
}

// HandleFormsCommand lists the known form templates.
func HandleFormsCommand(args []string) {
	jsonOut := false
	for _, arg := range args {
		if arg == "--json" {
			jsonOut = true
		}
	}

	registry := forms.NewRegistry()
	templates := registry.List()

	if jsonOut {
		printJSON(templates)
		return
	}

	fmt.Println("Form Templates:")
	fmt.Println("===============")
	for _, tpl := range templates {
		fmt.Printf("  %s - %s (%d fields)\n", tpl.ID, tpl.Title, len(tpl.Fields))
		if tpl.Description != "" {
			fmt.Printf("     %s\n", tpl.Description)
		}
	}
}

// HandleConfigCommand manages configuration
func HandleConfigCommand(args []string) {
	if len(args) == 0 {
		PrintConfigHelp()
		return
	}

	configPath := filepath.Join(onboarding.GetDataDir(), "config.yaml")

	switch args[0] {
	case "get":
		if len(args) < 2 {
			fmt.Println("Usage: docproc config get <key>")
			fmt.Println("Example: docproc config get server.port")
			os.Exit(1)
		}
		cfg, err := config.Load("", "")
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		printConfigValue(cfg, args[1])

	case "edit":
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}
		resolved, err := exec.LookPath(editor)
		if err != nil {
			fmt.Printf("Editor not found: %s\n", editor)
			os.Exit(1)
		}
		fmt.Printf("Opening %s in %s...\n", configPath, editor)
		syscall.Exec(resolved, []string{editor, configPath}, os.Environ())

	case "path":
		fmt.Println(configPath)

	case "show", "view":
		data, err := os.ReadFile(configPath)
		if err != nil {
			fmt.Printf("Error reading config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))

	default:
		PrintConfigHelp()
	}
}

func printConfigValue(cfg *config.Config, key string) {
	switch key {
	case "server.port":
		fmt.Println(cfg.Server.Port)
	case "server.address":
		fmt.Println(cfg.Server.Address)
	case "storage.data_dir":
		fmt.Println(cfg.Storage.DataDir)
	case "storage.retention_days":
		fmt.Println(cfg.Storage.RetentionDays)
	case "storage.max_image_mb":
		fmt.Println(cfg.Storage.MaxImageMB)
	case "pipeline.max_attempts":
		fmt.Println(cfg.Pipeline.MaxAttempts)
	case "channels.telegram.enabled":
		fmt.Println(cfg.Channels.Telegram.Enabled)
	default:
		fmt.Printf("Unknown key: %s\n", key)
		fmt.Println("Available keys: server.port, server.address, storage.data_dir, storage.retention_days, pipeline.max_attempts, channels.telegram.enabled")
	}
}

// HandleStatusCommand shows current status
func HandleStatusCommand() {
	cfg, err := config.Load("", "")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Document Processor Status")
	fmt.Println("=========================")
	fmt.Println()
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Config:  %s\n", filepath.Join(onboarding.GetDataDir(), "config.yaml"))
	fmt.Printf("Data:    %s\n", cfg.Storage.DataDir)
	fmt.Println()
	fmt.Println("Server Configuration:")
	fmt.Printf("  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Printf("  URL: http://localhost:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("Providers:")
	for _, id := range cfg.SortedProviderIDs() {
		p := cfg.Providers[id]
		key := "no key"
		if p.APIKey != "" {
			key = maskToken(p.APIKey)
		}
		fmt.Printf("  %d. %s (%s)\n", p.Priority, id, key)
	}
	fmt.Println()
	fmt.Println("Channels:")
	fmt.Printf("  Telegram: %s\n", channelStatus(cfg.Channels.Telegram.Enabled))
	fmt.Println()
	fmt.Println("Run 'docproc doctor' for diagnostics")
}

// HandleDoctorCommand runs diagnostics
func HandleDoctorCommand() {
	fmt.Println("Document Processor Diagnostics")
	fmt.Println("==============================")
	fmt.Println()

	issues := 0

	cfg, err := config.Load("", "")
	if err != nil {
		fmt.Println("❌ Config: Error loading configuration")
		fmt.Printf("   %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Config: Loaded successfully")

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		fmt.Println("❌ Data Directory: Does not exist")
		issues++
	} else {
		fmt.Println("✅ Data Directory: Exists")
	}

	configured := 0
	for _, id := range cfg.SortedProviderIDs() {
		if cfg.Providers[id].APIKey != "" {
			fmt.Printf("✅ Provider %s: key configured\n", id)
			configured++
		} else {
			fmt.Printf("⚠️  Provider %s: no API key\n", id)
		}
	}
	if configured == 0 {
		fmt.Println("❌ Providers: No API keys configured, the pipeline cannot run")
		fmt.Println("   Run: docproc init")
		issues++
	}

	if _, err := exec.LookPath("google-chrome"); err != nil {
		if _, err := exec.LookPath("chromium-browser"); err != nil {
			fmt.Println("⚠️  Chrome/Chromium: Not found (required for page capture)")
			fmt.Println("   Install: sudo apt-get install chromium-browser")
			issues++
		} else {
			fmt.Println("✅ Chromium: Found")
		}
	} else {
		fmt.Println("✅ Chrome: Found")
	}

	fmt.Println()
	if issues == 0 {
		fmt.Println("✅ All checks passed!")
	} else {
		fmt.Printf("⚠️  Found %d issue(s). Run 'docproc init' to fix configuration.\n", issues)
	}
}

func channelStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// readImageFile loads an image from disk ready for the pipeline.
func readImageFile(path string) (ai.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ai.Image{}, err
	}
	if len(data) == 0 {
		return ai.Image{}, fmt.Errorf("%s is empty", path)
	}
	return ai.Image{MimeType: mimeForExt(filepath.Ext(path)), Data: data}, nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
