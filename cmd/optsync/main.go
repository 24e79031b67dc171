// Command optsync runs the option-pricing engine against a live storefront
// tab and offers offline tooling around the same catalog.
//
// Usage:
//
//	optsync run -config optsync.yaml                        # daemon
//	optsync run -url https://shop.example/store             # daemon, defaults
//	optsync quote -product 793363376 -opt "Grip Color=Cork" # price offline
//	optsync catalog export -db catalog.db [-file out.yaml]
//	optsync catalog import -db catalog.db [-file catalog.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = cmdRun(ctx, args)
	case "quote":
		err = cmdQuote(ctx, args, os.Stdout)
	case "catalog":
		err = cmdCatalog(ctx, args, os.Stdout)
	case "-h", "-help", "--help", "help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "optsync: unknown command %q\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("optsync: fatal", "error", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: optsync run -config <file> | -url <url>")
	fmt.Fprintln(w, "       optsync quote -product <id> -opt Name=Value ...")
	fmt.Fprintln(w, "       optsync catalog export|import -db <path> [-file <path>]")
}

// newLogger builds the JSON logger of the daemon and makes it the default.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func logLevelFlag(fs *flag.FlagSet) *string {
	return fs.String("log-level", "info", "log level: debug, info, warn, error")
}
