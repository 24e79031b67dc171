package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/internal/config"
	"github.com/hazyhaar/optsync/optstate"
)

// cmdQuote prices a product offline, the way the live page would display it.
func cmdQuote(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to optsync.yaml (catalog section)")
	product := fs.Int64("product", 0, "product id")
	opts := map[string]string{}
	fs.Func("opt", "option as Name=Value, repeatable", func(s string) error {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return fmt.Errorf("want Name=Value, got %q", s)
		}
		opts[name] = value
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return err
		}
	}
	cat, db, err := cfg.OpenCatalog(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	return quote(cat, *product, opts, out)
}

func quote(cat *catalog.Catalog, id int64, opts map[string]string, out io.Writer) error {
	p, err := cat.Product(id)
	if err != nil {
		return err
	}
	snap, err := optstate.Quote(p, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Product   string `json:"product"`
		Formatted string `json:"formatted"`
		optstate.Snapshot
	}{p.Name, cat.FormatPrice(snap.Total), snap})
}
