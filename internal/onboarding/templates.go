package onboarding

// SetupWizardWelcome is the welcome message for the setup wizard
const SetupWizardWelcome = `
╔════════════════════════════════════════════════════════════════╗
║                                                                ║
║                 📄 Document Processor Setup                    ║
║                                                                ║
║        OCR and document analysis, self-hosted - Wizard         ║
║                                                                ║
╚════════════════════════════════════════════════════════════════╝

This wizard will guide you through setting up the document
processor. It takes about 2 minutes: you will pick a data
directory, enter provider API keys and choose server settings.

Press Enter to continue...
`

// SetupCompleteMessage is shown when setup completes
const SetupCompleteMessage = `
╔════════════════════════════════════════════════════════════════╗
║                                                                ║
║                  ✅ Setup Complete!                            ║
║                                                                ║
╚════════════════════════════════════════════════════════════════╝

Your data directory has been created at:
  {{.DataDir}}

Configuration file:
  {{.ConfigPath}}

## Next Steps:

1. Start the server:
   $ docproc serve

2. Or process a document straight from the shell:
   $ docproc process -i passport.jpg

## Useful Commands:

  docproc extract -i scan.png              # OCR only
  docproc analyze -i statement.txt         # Classify extracted text
  docproc batch -i ./scans                 # Process many documents
  docproc capture https://example.com      # Screenshot a page and process it
  docproc providers                        # Show provider availability

## Help:

  docproc --help

Happy processing! 📄
`

// providerGuide tells the wizard how to prompt for one provider's key.
type providerGuide struct {
	ID      string
	Title   string
	KeyURL  string
	KeyHint string
}

// ProviderGuides lists the supported providers in ladder order. The wizard
// walks them top to bottom; every key is optional but at least one is
// required overall.
var ProviderGuides = []providerGuide{
	{
		ID:      "ocrspace",
		Title:   "OCR.space (plain OCR, free tier available)",
		KeyURL:  "https://ocr.space/ocrapi",
		KeyHint: "e.g. K81724188988957",
	},
	{
		ID:      "gemini",
		Title:   "Google Gemini (vision OCR + analysis)",
		KeyURL:  "https://aistudio.google.com/apikey",
		KeyHint: "starts with 'AIza'",
	},
	{
		ID:      "openrouter",
		Title:   "OpenRouter (vision OCR + analysis fallback)",
		KeyURL:  "https://openrouter.ai/keys",
		KeyHint: "starts with 'sk-or-'",
	},
}

// configFileTemplate is the config.yaml the wizard writes. Placeholders are
// filled by renderConfigFile; every knob the server reads is spelled out so
// the file doubles as documentation.
const configFileTemplate = `# Document processor configuration
# Generated on %s

server:
  address: 0.0.0.0
  port: %d

auth:
  jwt_secret: "%s"
  admin_password: "%s"
  token_ttl_minutes: 1440
  allow_origins:
    - "*"

storage:
  data_dir: "%s"
  max_image_mb: 10
  retention_days: %d

providers:
  ocrspace:
    api_key: "%s"
    priority: 1
    language: eng
    engine: 2
  gemini:
    api_key: "%s"
    priority: 2
    model: gemini-2.0-flash
  openrouter:
    api_key: "%s"
    priority: 3
    model: anthropic/claude-3.5-sonnet

pipeline:
  max_attempts: 3
  base_delay_ms: 1000
  requests_per_minute: 60
  cache_ttl_minutes: 60

batch:
  max_concurrency: 3
  item_timeout: 60

channels:
  telegram:
    enabled: %v
    bot_token: "%s"
    allow_list: %s

capture:
  headless: true
  timeout: 45

maintenance:
  enabled: true
  retention_schedule: "0 3 * * *"
  availability_schedule: "*/5 * * * *"
  gc_schedule: "30 4 * * *"
`
