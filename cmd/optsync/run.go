package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/idgen"
	"github.com/hazyhaar/optsync/internal/admin"
	"github.com/hazyhaar/optsync/internal/browser"
	"github.com/hazyhaar/optsync/internal/config"
	"github.com/hazyhaar/optsync/internal/rodpage"
	"github.com/hazyhaar/optsync/journal"
	"github.com/hazyhaar/optsync/loop"
	"github.com/hazyhaar/optsync/session"
	"github.com/hazyhaar/optsync/watch"
)

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to optsync.yaml")
	url := fs.String("url", "", "storefront URL, overrides storefront.url")
	listen := fs.String("listen", "", "admin listen address, overrides admin.listen")
	logLevel := logLevelFlag(fs)
	fs.Parse(args)

	logger := newLogger(*logLevel)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return err
		}
	}
	if *url != "" {
		cfg.Storefront.URL = *url
	}
	if *listen != "" {
		cfg.Admin.Listen = *listen
	}
	if cfg.Storefront.URL == "" {
		return errors.New("storefront url required (-url or storefront.url)")
	}

	d := &daemon{cfg: cfg, log: logger}
	return d.run(ctx)
}

// daemon ties the browser, the engine loop and the outer surfaces together.
// ctrl and cat are touched only on the loop.
type daemon struct {
	cfg *config.Config
	log *slog.Logger

	loop    *loop.Loop
	journal *journal.Journal
	browser *browser.Manager
	watcher *watch.Watcher

	ctrl *session.Controller
	cat  *catalog.Catalog
}

func (d *daemon) run(ctx context.Context) error {
	cat, db, err := d.cfg.OpenCatalog(ctx)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if db != nil {
		defer db.Close()
	}
	d.cat = cat
	d.log.Info("optsync: catalog loaded", "products", len(cat.Products))

	d.loop = loop.New(d.log)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go d.loop.Run(loopCtx)
	defer func() {
		stopLoop()
		<-d.loop.Done()
	}()

	sink, err := d.cfg.JournalSink(d.log)
	if err != nil {
		return err
	}
	d.journal = journal.New(sink,
		journal.WithBuffer(d.cfg.Journal.Buffer),
		journal.WithIDGenerator(idgen.Prefixed("evt_", idgen.UUIDv7())),
		journal.WithLogger(d.log))
	defer d.journal.Close()

	bc := d.cfg.Browser
	d.browser = browser.NewManager(browser.Config{
		RemoteURL:        bc.Remote,
		Headful:          bc.Mode == "headful",
		XvfbDisplay:      bc.XvfbDisplay,
		XvfbScreen:       bc.XvfbScreen,
		MemoryLimit:      bc.MemoryLimit,
		RecycleInterval:  bc.RecycleInterval,
		ResourceBlocking: bc.ResourceBlocking,
		NavigateTimeout:  bc.NavigateTimeout,
		Logger:           d.log,
	})
	defer d.browser.Close()
	if _, err := d.browser.Start(ctx); err != nil {
		return err
	}
	if err := d.attach(ctx); err != nil {
		return err
	}
	d.browser.OnRecycle(func(*rod.Browser) {
		if err := d.attach(ctx); err != nil {
			d.log.Error("optsync: reopen storefront after recycle", "error", err)
		}
	})

	if db != nil {
		d.watcher = watch.New(db, watch.Options{
			Interval: d.cfg.Catalog.ReloadInterval,
			Debounce: d.cfg.Catalog.ReloadDebounce,
			Detector: watch.MaxColumnDetector("catalog_products", "updated_at"),
			Logger:   d.log,
		})
		go d.watchCatalog(ctx, db)
	}

	if d.cfg.Admin.Listen != "" {
		go d.serveAdmin(ctx)
	}

	<-ctx.Done()
	d.log.Info("optsync: shutting down")
	d.loop.Call(context.Background(), func() {
		if d.ctrl != nil {
			d.ctrl.Close()
		}
	})
	return nil
}

// attach opens the storefront tab and builds a controller over it,
// replacing the previous one.
func (d *daemon) attach(ctx context.Context) error {
	page, err := d.browser.OpenTab(ctx, d.cfg.Storefront.URL, rodpage.Bridge)
	if err != nil {
		return err
	}
	p, err := rodpage.Attach(ctx, page, d.loop, d.log)
	if err != nil {
		page.Close()
		return err
	}

	ec := d.cfg.Engine
	return d.loop.Call(ctx, func() {
		if d.ctrl != nil {
			d.ctrl.Close()
		}
		ctrl := session.NewController(session.Config{
			Doc:         p,
			Sched:       d.loop,
			Catalog:     d.cat,
			Service:     rodpage.NewCart(p),
			Journal:     d.journal,
			Logger:      d.log,
			Wait:        ec.Wait(),
			RebindDelay: ec.RebindDelay,
			RemoveDelay: ec.RemoveDelay,
		})
		ctrl.SetContext(ctx)
		p.OnPageLoaded(ctrl.OnPageLoaded)
		d.ctrl = ctrl
	})
}

func (d *daemon) watchCatalog(ctx context.Context, db *sql.DB) {
	d.watcher.OnChange(ctx, func() error {
		cat, err := catalog.LoadDB(ctx, db)
		if err != nil {
			return err
		}
		return d.loop.Call(ctx, func() {
			d.cat = cat
			if d.ctrl != nil {
				d.ctrl.SetCatalog(cat)
			}
		})
	})
}

func (d *daemon) serveAdmin(ctx context.Context) {
	cfg := admin.Config{
		Loop:       d.loop,
		Controller: func() *session.Controller { return d.ctrl },
		Logger:     d.log,
	}
	if d.watcher != nil {
		cfg.Reloads = d.watcher.Stats
	}
	srv := &http.Server{
		Addr:              d.cfg.Admin.Listen,
		Handler:           admin.New(cfg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	d.log.Info("optsync: admin listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.log.Error("optsync: admin server", "error", err)
	}
}
