package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/app"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/cli"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/onboarding"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	onboard    = flag.Bool("onboard", false, "Run the setup wizard")
	version    = "dev"
)

func main() {
	cli.Version = version

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			flag.CommandLine.Parse(os.Args[2:])
			runServer()
			return
		case "init", "onboard":
			runOnboarding()
			return
		case "extract":
			cli.HandleExtractCommand(os.Args[2:])
			return
		case "analyze":
			cli.HandleAnalyzeCommand(os.Args[2:])
			return
		case "process":
			cli.HandleProcessCommand(os.Args[2:])
			return
		case "batch":
			cli.HandleBatchCommand(os.Args[2:])
			return
		case "capture":
			cli.HandleCaptureCommand(os.Args[2:])
			return
		case "providers":
			cli.HandleProvidersCommand(os.Args[2:])
			return
		case "forms":
			cli.HandleFormsCommand(os.Args[2:])
			return
		case "config":
			cli.HandleConfigCommand(os.Args[2:])
			return
		case "status":
			cli.HandleStatusCommand()
			return
		case "doctor":
			cli.HandleDoctorCommand()
			return
		case "help", "--help", "-h":
			cli.PrintMainHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("docproc version %s\n", version)
			return
		}
	}

	flag.Parse()

	if onboarding.CheckFirstRun() && !*onboard && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("📄 Welcome to Document Processor!")
		fmt.Println()
		fmt.Println("It looks like this is your first run.")
		fmt.Println("Let's configure your providers and storage.")
		fmt.Println()
		fmt.Print("Run the setup wizard? (Y/n): ")

		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))

		if response == "" || response == "y" || response == "yes" {
			runOnboarding()
			return
		}
	}

	if *onboard {
		runOnboarding()
		return
	}

	runServer()
}

func runOnboarding() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	wizard := onboarding.NewWizard(logger)
	if err := wizard.Run(); err != nil {
		fmt.Printf("\n❌ Setup failed: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Document Processor", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	application, err := app.New(cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	application.RunServer()
}
