package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/finance-bot/internal/backend"
	"github.com/dvloznov/finance-bot/internal/config"
	"github.com/dvloznov/finance-bot/internal/directory"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/report"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "report":
		runReport(log)
	case "export":
		runExport(log)
	case "upload":
		runUpload(log)
	case "append":
		runAppend(log)
	case "fetch":
		runFetch(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Bot CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options] [args]")
	fmt.Println("\nCommands:")
	fmt.Println("  report    Print the profit and loss summary of a month or year")
	fmt.Println("  export    Write a period to an .xlsx workbook")
	fmt.Println("  upload    Store a receipt file for a record kind")
	fmt.Println("  append    Add a record from positional fields")
	fmt.Println("  fetch     Download a gs:// receipt to a local file")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// open loads the configuration and connects to storage. The caller closes
// the returned backends.
func open(ctx context.Context, log zerolog.Logger) (*config.Config, *backend.Backends, *store.Ledger) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.ValidateStorage(); err != nil {
		log.Fatal().Err(err).Msg("Invalid storage configuration")
	}

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	agents := directory.NewService(b.Directory, nil)
	return cfg, b, &store.Ledger{Records: b.Records, Sheets: store.DefaultSheetKeys, Agents: agents}
}

func runReport(log zerolog.Logger) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprintln(os.Stderr, "Usage: cli report [YYYY [MM] | YYYY-MM]") }
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, b, ledger := open(ctx, log)
	defer b.Close()

	summary, _, err := summarize(ctx, ledger, fs.Args(), time.Now().In(cfg.Location), false)
	if err != nil {
		log.Fatal().Err(err).Msg("Report failed")
	}
	fmt.Println(report.Format(summary))
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "Output path (defaults to the export file name in the current directory)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cli export [-out PATH] [YYYY [MM]]")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, b, ledger := open(ctx, log)
	defer b.Close()

	summary, records, err := summarize(ctx, ledger, fs.Args(), time.Now().In(cfg.Location), true)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	data, err := report.ExportXLSX(summary, records)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	path := *out
	if path == "" {
		path = report.ExportFilename(summary.Period)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to write workbook")
	}
	fmt.Printf("Wrote %d records for %s to %s\n", summary.Records, summary.Period, path)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	kind := fs.String("kind", "expense", "Record kind whose folder receives the file")
	filePath := fs.String("file", "", "Path to the local receipt")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH [-kind expense|income|sale]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	_, b, _ := open(ctx, log)
	defer b.Close()

	log.Info().Str("file", *filePath).Str(logger.FieldKind, *kind).Msg("Uploading receipt")

	ref, err := uploadFile(ctx, b.Attachments, b.Folders, *kind, filepath.Base(*filePath), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s: %s\n", *filePath, ref)
}

func runAppend(log zerolog.Logger) {
	fs := flag.NewFlagSet("append", flag.ExitOnError)
	kind := fs.String("kind", "", "Record kind: expense, income or sale")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cli append -kind KIND [date] fields...")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[2:])

	if *kind == "" {
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, b, ledger := open(ctx, log)
	defer b.Close()

	reply, err := appendRecord(ctx, ledger, *kind, fs.Args(), time.Now().In(cfg.Location))
	if err != nil {
		log.Fatal().Err(err).Msg("Append failed")
	}
	fmt.Println(reply)
}

func runFetch(log zerolog.Logger) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	gcsURI := fs.String("gcs-uri", "", "gs:// URI of the receipt")
	out := fs.String("out", "", "Output path (defaults to the object file name)")
	fs.Parse(os.Args[2:])

	if *gcsURI == "" {
		log.Fatal().Msg("Error: --gcs-uri is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	_, b, _ := open(ctx, log)
	defer b.Close()
	if b.GCS == nil {
		log.Fatal().Msg("fetch needs ATTACHMENT_BACKEND=gcs")
	}

	path, err := fetchReceipt(ctx, b.GCS, *gcsURI, *out)
	if err != nil {
		log.Fatal().Err(err).Str("gcs_uri", *gcsURI).Msg("Fetch failed")
	}
	fmt.Printf("Downloaded %s to %s\n", *gcsURI, path)
}
