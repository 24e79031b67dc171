package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dbopen"
)

// cmdCatalog moves the catalog between YAML and SQLite. Import writes the
// built-in catalog when no file is given.
func cmdCatalog(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("catalog: want export or import")
	}
	fs := flag.NewFlagSet("catalog "+args[0], flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite catalog path")
	file := fs.String("file", "", "YAML catalog path")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("catalog: -db required")
	}

	db, err := dbopen.Open(*dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "export":
		c, err := catalog.LoadDB(ctx, db)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("catalog: encode: %w", err)
		}
		if *file == "" {
			_, err = out.Write(data)
			return err
		}
		return os.WriteFile(*file, data, 0o644)
	case "import":
		c := catalog.Builtin()
		if *file != "" {
			if c, err = catalog.LoadFile(*file); err != nil {
				return err
			}
		}
		if err := catalog.SaveDB(ctx, db, c); err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d products into %s\n", len(c.Products), *dbPath)
		return nil
	}
	return fmt.Errorf("catalog: unknown subcommand %q", args[0])
}
