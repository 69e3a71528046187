package cli

import "fmt"

// PrintMainHelp prints the top-level usage.
func PrintMainHelp() {
	fmt.Println(`📄 Document Processor - multi-provider OCR and document analysis

Usage:
  docproc [command] [flags]

Commands:
  serve        Start the HTTP server and intake channels (also the default)
  init         Run the interactive setup wizard
  extract      Run OCR over a single image
  analyze      Classify extracted text and pull out fields
  process      Extract then analyze one image
  batch        Process a manifest file or a directory of images
  capture      Screenshot a web page, optionally processing it
  providers    Show the provider ladder and probe availability
  forms        List the known form templates
  config       Get, show, or edit configuration
  status       Show the configuration summary
  doctor       Run environment diagnostics
  version      Print the version
  help         Show this help

Server flags:
  --config <file>   Configuration file path
  --data <dir>      Data directory override

Run 'docproc <command> -h' for command-specific flags.`)
}

func PrintExtractHelp() {
	fmt.Println(`Run OCR over a single image.

Usage:
  docproc extract -i <image> [flags]

Flags:
  -i, --image <file>     Image file (jpeg, png, webp, gif)
  -p, --provider <id>    Try this provider first (ocrspace, gemini, openrouter)
      --json             Print the raw response as JSON
  -h, --help             Show this help

Example:
  docproc extract -i passport.jpg
  docproc extract -i invoice.png -p gemini --json`)
}

func PrintAnalyzeHelp() {
	fmt.Println(`Classify extracted text and pull out structured fields.

Usage:
  docproc analyze -i <textfile> [flags]
  docproc analyze --text "..." [flags]

Flags:
  -i, --input <file>     Text file to analyze
      --text <string>    Inline text to analyze
  -p, --provider <id>    Try this provider first (gemini, openrouter)
      --json             Print the raw response as JSON
  -h, --help             Show this help

Example:
  docproc analyze -i extracted.txt
  docproc analyze --text "PASSPORT ... Surname: DOE"`)
}

func PrintProcessHelp() {
	fmt.Println(`Extract then analyze one image and record the result.

Usage:
  docproc process -i <image> [flags]

Flags:
  -i, --image <file>     Image file (jpeg, png, webp, gif)
  -p, --provider <id>    Try this provider first
      --json             Print the raw response as JSON
  -h, --help             Show this help

Example:
  docproc process -i passport.jpg`)
}

func PrintBatchHelp() {
	fmt.Println(`Process many documents through the full pipeline.

Usage:
  docproc batch -i <manifest|dir> [flags]

The input is either a JSON manifest (array or one object per line, each
with an image_data_url) or a directory of image files.

Flags:
  -i, --input <path>        Manifest file or image directory
  -o, --output <file>       Write full results as JSON
  -c, --concurrency <n>     Worker count (default from config)
  -t, --timeout <seconds>   Per-document timeout (default from config)
  -p, --provider <id>       Preferred provider for items that set none
      --json                Print full results as JSON
  -h, --help                Show this help

Example:
  docproc batch -i ./scans -c 4 -o results.json
  docproc batch -i manifest.jsonl --json`)
}

func PrintCaptureHelp() {
	fmt.Println(`Screenshot a web page, optionally running it through the pipeline.

Usage:
  docproc capture <url> [flags]

Flags:
  -o, --output <file>    Screenshot path (default capture.png)
      --wait <selector>  Wait for a CSS selector before capturing
      --viewport         Capture the viewport instead of the full page
      --text             Read the rendered text instead of screenshotting
      --process          Run the capture through the pipeline
      --json             Print the processing result as JSON
  -h, --help             Show this help

Examples:
  docproc capture https://example.com/invoice --process
  docproc capture https://example.com/statement --text --process`)
}

func PrintConfigHelp() {
	fmt.Println(`Manage configuration.

Usage:
  docproc config <subcommand>

Subcommands:
  get <key>    Print one value (for example server.port)
  show         Print the whole config file
  edit         Open the config file in $EDITOR
  path         Print the config file path

Example:
  docproc config get server.port
  docproc config edit`)
}
