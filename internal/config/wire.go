package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dbopen"
	"github.com/hazyhaar/optsync/journal"
	"github.com/hazyhaar/optsync/resilience"
)

// OpenCatalog loads the configured catalog. The returned db is non-nil only
// for the SQLite variant; the caller closes it.
func (c *Config) OpenCatalog(ctx context.Context) (*catalog.Catalog, *sql.DB, error) {
	switch {
	case c.Catalog.File != "":
		cat, err := catalog.LoadFile(c.Catalog.File)
		return cat, nil, err
	case c.Catalog.DB != "":
		db, err := dbopen.Open(c.Catalog.DB, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
		if err != nil {
			return nil, nil, fmt.Errorf("config: catalog db: %w", err)
		}
		cat, err := catalog.LoadDB(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return cat, db, nil
	default:
		return catalog.Builtin(), nil, nil
	}
}

// JournalSink builds the configured sinks behind one Router. Closing the
// returned sink closes any database it opened.
func (c *Config) JournalSink(logger *slog.Logger) (journal.Sink, error) {
	sinks := make([]journal.Sink, 0, len(c.Journal.Sinks))
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	for _, s := range c.Journal.Sinks {
		switch s.Type {
		case "stdout":
			sinks = append(sinks, journal.NewStdout(os.Stdout))
		case "webhook":
			sinks = append(sinks, journal.NewWebhook(s.URL,
				journal.WithWebhookRetries(s.Retries),
				journal.WithWebhookBackoff(s.Backoff),
				journal.WithWebhookLogger(logger)))
		case "sqlite":
			db, err := dbopen.Open(s.Path, dbopen.WithMkdirAll())
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("config: journal db: %w", err)
			}
			sink, err := journal.NewSQLite(db)
			if err != nil {
				db.Close()
				closeAll()
				return nil, err
			}
			sinks = append(sinks, dbSink{Sink: sink, db: db})
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return journal.NewRouter(logger, sinks...), nil
}

// dbSink closes the database it writes to.
type dbSink struct {
	journal.Sink
	db *sql.DB
}

func (s dbSink) Close() error {
	err := s.Sink.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Wait returns the widget polling bounds.
func (e EngineConfig) Wait() resilience.PollConfig {
	return resilience.PollConfig{Interval: e.WaitInterval, Attempts: e.WaitAttempts}
}
