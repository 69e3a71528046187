package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/batch"
)

// HandleBatchCommand processes a manifest file or a directory of images
// through the full pipeline.
func HandleBatchCommand(args []string) {
	input := ""
	output := ""
	concurrency := 0
	timeoutSec := 0
	provider := ""
	jsonOut := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-i", "--input":
			if i+1 < len(args) {
				input = args[i+1]
				i++
			}
		case "-o", "--output":
			if i+1 < len(args) {
				output = args[i+1]
				i++
			}
		case "-c", "--concurrency":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					concurrency = n
				}
				i++
			}
		case "-t", "--timeout":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					timeoutSec = n
				}
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
			PrintBatchHelp()
			return
		}
	}

	if input == "" {
		fmt.Println("Error: Input file or directory is required")
		fmt.Println("Usage: docproc batch -i <manifest|dir> [-o <results.json>] [-c <workers>]")
		os.Exit(1)
	}

	info, err := os.Stat(input)
	if err != nil {
		fmt.Printf("Error reading input: %v\n", err)
		os.Exit(1)
	}

	var items []batch.InputItem
	if info.IsDir() {
		items, err = batch.LoadDirectory(input)
	} else {
		items, err = batch.LoadItems(input)
	}
	if err != nil {
		fmt.Printf("Error loading batch input: %v\n", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Println("No documents to process")
		return
	}

	if provider != "" {
		for i := range items {
			if items[i].PreferredProvider == "" {
				items[i].PreferredProvider = provider
			}
		}
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd())) && !jsonOut

	// Development logs would tear the progress display.
	var logger *zap.Logger
	if interactive {
		logger = zap.NewNop()
	} else {
		logger, _ = zap.NewDevelopment()
		defer logger.Sync()
	}

	application := loadApp(logger)
	defer application.Close()

	bcfg := batch.Config{
		MaxConcurrency:    application.Config.Batch.MaxConcurrency,
		ItemTimeout:       time.Duration(application.Config.Batch.ItemTimeout) * time.Second,
		RequestsPerMinute: application.Config.Batch.RequestsPerMinute,
	}
	if concurrency > 0 {
		bcfg.MaxConcurrency = concurrency
	}
	if timeoutSec > 0 {
		bcfg.ItemTimeout = time.Duration(timeoutSec) * time.Second
	}

	processor := batch.NewProcessor(application.Service, bcfg, logger)

	var result *batch.Result
	var canceled bool
	if interactive {
		result, canceled = runBatchTUI(processor, items)
	} else {
		tracker := &batch.ProgressTracker{Total: len(items), StartTime: time.Now()}
		processor.OnItem = func(completed, total int, item batch.OutputItem) {
			tracker.Increment()
			mark := "✓"
			if !item.Success {
				mark = "✗"
			}
			fmt.Printf("[%d/%d] %s %s (eta %v)\n", completed, total, mark, itemLabel(item), tracker.ETA().Round(time.Second))
		}
		result = processor.Process(context.Background(), items)
	}

	if canceled {
		fmt.Println("⚠️  Batch canceled, partial results follow")
	}

	if jsonOut {
		text, err := result.ToJSON()
		if err != nil {
			fmt.Printf("Error encoding results: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(text)
	} else {
		fmt.Println()
		fmt.Print(result.Summary())
		for _, item := range result.Items {
			if !item.Success {
				fmt.Printf("  ✗ %s: %s\n", itemLabel(item), item.Error)
			}
		}
	}

	if output != "" {
		text, err := result.ToJSON()
		if err != nil {
			fmt.Printf("Error encoding results: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(output, []byte(text), 0644); err != nil {
			fmt.Printf("Error writing results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n✓ Results saved to: %s\n", output)
	}

	if canceled || result.Failed > 0 {
		os.Exit(1)
	}
}

// runBatchTUI drives the processor under a progress display. The second
// return is true when the user canceled before completion; the result then
// covers only the items that finished.
func runBatchTUI(processor *batch.Processor, items []batch.InputItem) (*batch.Result, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prog := tea.NewProgram(newBatchModel(len(items)))

	processor.OnItem = func(completed, total int, item batch.OutputItem) {
		prog.Send(itemProgressMsg{
			completed: completed,
			filename:  itemLabel(item),
			success:   item.Success,
			err:       item.Error,
		})
	}

	done := make(chan *batch.Result, 1)
	go func() {
		done <- processor.Process(ctx, items)
		prog.Send(batchDoneMsg{})
	}()

	// Display errors are not fatal; the workers run to completion regardless.
	final, _ := prog.Run()
	if m, ok := final.(batchModel); ok && m.canceled {
		cancel()
		return <-done, true
	}
	return <-done, false
}

func itemLabel(item batch.OutputItem) string {
	if item.Filename != "" {
		return item.Filename
	}
	return item.ID
}
