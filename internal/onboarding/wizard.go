package onboarding

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Wizard handles the interactive first-run setup
type Wizard struct {
	reader  *bufio.Reader
	logger  *zap.Logger
	dataDir string
	config  *WizardConfig
}

// WizardConfig holds the answers collected during setup
type WizardConfig struct {
	OCRSpaceKey    string
	GeminiKey      string
	OpenRouterKey  string
	ServerPort     int
	AdminPassword  string
	RetentionDays  int
	EnableTelegram bool
	TelegramToken  string
	AllowList      []int64
}

// NewWizard creates a new setup wizard
func NewWizard(logger *zap.Logger) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
		logger: logger,
		config: &WizardConfig{ServerPort: 8080, RetentionDays: 30},
	}
}

// Run runs the interactive setup wizard
func (w *Wizard) Run() error {
	// Clear screen and show welcome
	w.clearScreen()
	fmt.Print(SetupWizardWelcome)
	w.waitForEnter()

	// Step 1: Storage setup
	if err := w.setupStorage(); err != nil {
		return fmt.Errorf("storage setup failed: %w", err)
	}

	// Step 2: Provider keys
	if err := w.setupProviders(); err != nil {
		return fmt.Errorf("provider setup failed: %w", err)
	}

	// Step 3: Server settings
	if err := w.setupServer(); err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	// Step 4: Optional integrations
	if err := w.setupIntegrations(); err != nil {
		return fmt.Errorf("integrations setup failed: %w", err)
	}

	// Step 5: Create configuration
	if err := w.createConfiguration(); err != nil {
		return fmt.Errorf("configuration creation failed: %w", err)
	}

	// Show completion message
	w.showCompletion()

	return nil
}

func (w *Wizard) setupStorage() error {
	w.clearScreen()
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Step 1: Storage                                               ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	defaultDir := GetDataDir()
	fmt.Printf("Where should documents and results be stored? [default: %s]: ", defaultDir)
	dir, _ := w.reader.ReadString('\n')
	dir = strings.TrimSpace(dir)

	if dir == "" {
		dir = defaultDir
	}

	w.dataDir = dir

	// Create data directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Create subdirectories
	subdirs := []string{"uploads", "badger"}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Print("Delete processed documents after how many days? (0 keeps them forever) [default: 30]: ")
	days, _ := w.reader.ReadString('\n')
	if n, err := parseInt(strings.TrimSpace(days)); err == nil && n >= 0 {
		w.config.RetentionDays = n
	}

	fmt.Println("✓ Storage configured")
	time.Sleep(500 * time.Millisecond)

	return nil
}

func (w *Wizard) setupProviders() error {
	w.clearScreen()
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Step 2: Provider API Keys                                     ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Documents run through providers in priority order until one")
	fmt.Println("succeeds. Leave a key empty to skip that provider.")

	for {
		keys := make(map[string]string, len(ProviderGuides))
		for _, guide := range ProviderGuides {
			fmt.Println()
			fmt.Println(guide.Title)
			fmt.Printf("Get your key from: %s\n", guide.KeyURL)
			keys[guide.ID] = w.readSecret(fmt.Sprintf("API key (%s, Enter to skip): ", guide.KeyHint))
		}

		w.config.OCRSpaceKey = keys["ocrspace"]
		w.config.GeminiKey = keys["gemini"]
		w.config.OpenRouterKey = keys["openrouter"]

		if w.config.OCRSpaceKey != "" || w.config.GeminiKey != "" || w.config.OpenRouterKey != "" {
			break
		}
		fmt.Println()
		fmt.Println("❌ At least one provider key is required.")
	}

	fmt.Println("\n✓ Providers configured")
	time.Sleep(500 * time.Millisecond)

	return nil
}

func (w *Wizard) setupServer() error {
	w.clearScreen()
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Step 3: Server                                                ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Print("Which port should the HTTP API listen on? [default: 8080]: ")
	port, _ := w.reader.ReadString('\n')
	if n, err := parseInt(strings.TrimSpace(port)); err == nil && n > 0 && n <= 65535 {
		w.config.ServerPort = n
	}

	fmt.Println()
	fmt.Println("An admin password protects the HTTP API. Leave it empty to run")
	fmt.Println("in open mode (anyone who can reach the port can log in).")
	w.config.AdminPassword = w.readSecret("Admin password (Enter for open mode): ")

	fmt.Println("\n✓ Server configured")
	time.Sleep(500 * time.Millisecond)

	return nil
}

func (w *Wizard) setupIntegrations() error {
	w.clearScreen()
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Step 4: Optional Integrations                                 ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Telegram
	fmt.Println("Would you like to enable Telegram intake?")
	fmt.Println("This lets you send photos and scans to a bot and get results back.")
	fmt.Print("Enable Telegram? (y/n) [default: n]: ")
	enableTelegram, _ := w.reader.ReadString('\n')
	enableTelegram = strings.ToLower(strings.TrimSpace(enableTelegram))

	if enableTelegram == "y" || enableTelegram == "yes" {
		w.config.EnableTelegram = true
		fmt.Println()
		fmt.Println("To set up Telegram:")
		fmt.Println("1. Message @BotFather on Telegram")
		fmt.Println("2. Create a new bot with /newbot")
		fmt.Println("3. Copy the bot token")
		fmt.Println()
		w.config.TelegramToken = w.readSecret("Enter your Telegram Bot Token: ")

		fmt.Println()
		fmt.Println("Restrict the bot to specific Telegram user IDs?")
		fmt.Print("(comma-separated, empty allows everyone): ")
		ids, _ := w.reader.ReadString('\n')
		w.config.AllowList = parseAllowList(strings.TrimSpace(ids))
	}

	fmt.Println("\n✓ Integrations configured")
	time.Sleep(500 * time.Millisecond)

	return nil
}

func (w *Wizard) createConfiguration() error {
	configPath := filepath.Join(w.dataDir, "config.yaml")

	content := renderConfigFile(w.dataDir, w.config, randomHex(32))
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	w.logger.Info("Configuration written", zap.String("path", configPath))
	return nil
}

// renderConfigFile fills configFileTemplate with the collected answers.
func renderConfigFile(dataDir string, cfg *WizardConfig, jwtSecret string) string {
	return fmt.Sprintf(configFileTemplate,
		time.Now().Format("2006-01-02"),
		cfg.ServerPort,
		jwtSecret,
		cfg.AdminPassword,
		dataDir,
		cfg.RetentionDays,
		cfg.OCRSpaceKey,
		cfg.GeminiKey,
		cfg.OpenRouterKey,
		cfg.EnableTelegram,
		cfg.TelegramToken,
		formatAllowList(cfg.AllowList),
	)
}

func (w *Wizard) showCompletion() {
	w.clearScreen()

	message := SetupCompleteMessage
	message = strings.ReplaceAll(message, "{{.DataDir}}", w.dataDir)
	message = strings.ReplaceAll(message, "{{.ConfigPath}}", filepath.Join(w.dataDir, "config.yaml"))

	fmt.Print(message)
}

func (w *Wizard) clearScreen() {
	fmt.Print("\033[H\033[2J")
}

func (w *Wizard) waitForEnter() {
	w.reader.ReadString('\n')
}

// readSecret prompts without echoing when stdin is a terminal. Piped input
// falls back to a plain read so scripted setups still work.
func (w *Wizard) readSecret(prompt string) string {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	line, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func parseInt(s string) (int, error) {
	var result int
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseAllowList turns "123, 456" into Telegram user IDs, skipping entries
// that are not numeric.
func parseAllowList(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	for _, part := range splitAndTrim(s, ",") {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			fmt.Printf("  (skipping %q: not a numeric Telegram user ID)\n", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func formatAllowList(ids []int64) string {
	if len(ids) == 0 {
		return "[]"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// CheckFirstRun checks if this is the first run (no config exists)
func CheckFirstRun() bool {
	configPath := filepath.Join(GetDataDir(), "config.yaml")
	_, err := os.Stat(configPath)
	return os.IsNotExist(err)
}

// GetDataDir returns the default data directory
func GetDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docproc")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "docproc")
}
