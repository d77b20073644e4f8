package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/certgen/internal/certctl"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	apiURL := fs.String("api", envOr("CERTGEN_API_URL", "http://localhost:8001"), "Certificate API base URL")
	prefix := fs.String("prefix", "/api/v1", "API path prefix")

	var err error
	switch cmd {
	case "generate":
		file := fs.String("f", "", "Path to certificate request YAML file (required)")
		regenerate := fs.Bool("regenerate", false, "Replace an existing certificate")
		fs.Parse(args)
		requireFlag(fs, "f", *file)
		err = certctl.Generate(ctx, client(*apiURL, *prefix), os.Stdout, *file, *regenerate)

	case "batch":
		file := fs.String("f", "", "Path to batch definition YAML file (required)")
		sync := fs.Bool("sync", false, "Process the batch within the request")
		wait := fs.Bool("wait", false, "Wait for an asynchronous batch to finish")
		interval := fs.Duration("interval", 2*time.Second, "Polling interval for -wait")
		timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for -wait")
		fs.Parse(args)
		requireFlag(fs, "f", *file)
		err = certctl.Batch(ctx, client(*apiURL, *prefix), os.Stdout, *file, certctl.BatchOptions{
			Sync:         *sync,
			Wait:         *wait,
			PollInterval: *interval,
			Timeout:      *timeout,
		})

	case "status", "batch-status", "verify":
		fs.Parse(args)
		id := requireID(fs, cmd)
		c := client(*apiURL, *prefix)
		switch cmd {
		case "status":
			err = certctl.Status(ctx, c, os.Stdout, id)
		case "batch-status":
			err = certctl.BatchStatus(ctx, c, os.Stdout, id)
		default:
			err = certctl.Verify(ctx, c, os.Stdout, id)
		}

	case "download":
		dest := fs.String("o", "", "Output file, - for stdout (default <id>.pdf)")
		fs.Parse(args)
		id := requireID(fs, cmd)
		err = certctl.Download(ctx, client(*apiURL, *prefix), os.Stdout, id, *dest)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func client(apiURL, prefix string) *certctl.Client {
	c := certctl.NewClient(apiURL, os.Getenv("CERTGEN_API_KEY"))
	c.Prefix = prefix
	return c
}

func requireFlag(fs *flag.FlagSet, name, value string) {
	if value == "" {
		fmt.Fprintf(os.Stderr, "Error: -%s flag is required\n", name)
		fs.Usage()
		os.Exit(1)
	}
}

func requireID(fs *flag.FlagSet, cmd string) string {
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: certctl %s [flags] <id>\n", cmd)
		os.Exit(1)
	}
	return fs.Arg(0)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  certctl generate -f <request.yaml> [-regenerate]
  certctl batch -f <batch.yaml> [-sync] [-wait]
  certctl status <certificate-id>
  certctl batch-status <batch-id>
  certctl verify <certificate-id>
  certctl download [-o file.pdf] <certificate-id>

Flags shared by every command:
  -api      API base URL (env CERTGEN_API_URL, default http://localhost:8001)
  -prefix   API path prefix (default /api/v1)

The API key is read from CERTGEN_API_KEY.`)
}
