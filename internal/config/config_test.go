package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dbopen"
	"github.com/hazyhaar/optsync/journal"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("storefront:\n  url: https://shop.example/store\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Mode != "headless" {
		t.Errorf("mode: got %q, want headless", cfg.Browser.Mode)
	}
	if cfg.Browser.XvfbScreen != "1920x1080x24" {
		t.Errorf("xvfb screen: got %q", cfg.Browser.XvfbScreen)
	}
	if cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("recycle: got %v, want 4h", cfg.Browser.RecycleInterval)
	}
	if diff := cmp.Diff([]string{"images", "fonts", "media"}, cfg.Browser.ResourceBlocking); diff != "" {
		t.Errorf("resource blocking (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]SinkConfig{{Type: "stdout"}}, cfg.Journal.Sinks); diff != "" {
		t.Errorf("sinks (-want +got):\n%s", diff)
	}
	want := EngineConfig{
		WaitInterval: 100 * time.Millisecond,
		WaitAttempts: 50,
		RebindDelay:  100 * time.Millisecond,
		RemoveDelay:  100 * time.Millisecond,
	}
	if diff := cmp.Diff(want, cfg.Engine); diff != "" {
		t.Errorf("engine (-want +got):\n%s", diff)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Journal.Buffer != 256 {
		t.Fatalf("buffer: got %d, want 256", cfg.Journal.Buffer)
	}
}

func TestParse_Full(t *testing.T) {
	data := `
browser:
  remote: ws://127.0.0.1:9222
  mode: headful
  resource_blocking: []
storefront:
  url: https://grasssticks.example/store
catalog:
  db: /var/lib/optsync/catalog.db
  reload_interval: 2s
journal:
  sinks:
    - type: webhook
      url: https://hooks.example/optsync
admin:
  listen: 127.0.0.1:8080
engine:
  wait_attempts: 20
  rebind_delay: 250ms
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Mode != "headful" || cfg.Browser.Remote != "ws://127.0.0.1:9222" {
		t.Errorf("browser: got %+v", cfg.Browser)
	}
	if len(cfg.Browser.ResourceBlocking) != 0 {
		t.Errorf("explicit empty blocking list replaced: %v", cfg.Browser.ResourceBlocking)
	}
	if cfg.Catalog.ReloadInterval != 2*time.Second || cfg.Catalog.ReloadDebounce != time.Second {
		t.Errorf("catalog: got %+v", cfg.Catalog)
	}
	wh := cfg.Journal.Sinks[0]
	if wh.Retries != 3 || wh.Backoff != time.Second {
		t.Errorf("webhook defaults: got %+v", wh)
	}
	if w := cfg.Engine.Wait(); w.Attempts != 20 || w.Interval != 100*time.Millisecond {
		t.Errorf("wait: got %+v", w)
	}
	if cfg.Engine.RebindDelay != 250*time.Millisecond {
		t.Errorf("rebind delay: got %v", cfg.Engine.RebindDelay)
	}
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("engine:\n  rebind_dealy: 1s\n"))
	if err == nil || !strings.Contains(err.Error(), "rebind_dealy") {
		t.Fatalf("err: got %v, want unknown field", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	data := `
browser:
  mode: kiosk
catalog:
  file: catalog.yaml
  db: catalog.db
journal:
  sinks:
    - type: webhook
    - type: nats
`
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"browser.mode", "mutually exclusive", "webhook without url", `unknown type "nats"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenCatalog_Builtin(t *testing.T) {
	cat, db, err := Default().OpenCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if db != nil {
		t.Fatal("builtin catalog opened a database")
	}
	if !cat.Allowed(793363376) {
		t.Fatal("builtin catalog missing OG")
	}
}

func TestOpenCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `
products:
  - id: 42
    name: Test Pole
    base_price: 10
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.Catalog.File = path
	cat, _, err := cfg.OpenCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !cat.Allowed(42) || cat.Allowed(793363376) {
		t.Fatalf("products: got %+v", cat.Products)
	}
}

func TestOpenCatalog_DB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "catalog.db")
	seed, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
	if err != nil {
		t.Fatal(err)
	}
	if err := catalog.SaveDB(context.Background(), seed, catalog.Builtin()); err != nil {
		t.Fatal(err)
	}
	seed.Close()

	cfg := Default()
	cfg.Catalog.DB = path
	cat, db, err := cfg.OpenCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if !cat.Allowed(800767786) {
		t.Fatal("plunger missing from db catalog")
	}
}

func TestJournalSink(t *testing.T) {
	cfg := Default()
	sink, err := cfg.JournalSink(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(*journal.Stdout); !ok {
		t.Fatal("single stdout sink not returned directly")
	}
	cfg.Journal.Sinks = append(cfg.Journal.Sinks, SinkConfig{Type: "webhook", URL: "http://127.0.0.1:1", Retries: 1})
	if sink, _ = cfg.JournalSink(nil); sink == nil {
		t.Fatal("nil sink")
	}
	if _, ok := sink.(*journal.Router); !ok {
		t.Fatal("two sinks not routed")
	}
}

func TestJournalSink_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "journal.db")
	cfg := Default()
	cfg.Journal.Sinks = []SinkConfig{{Type: "sqlite", Path: path}}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	sink, err := cfg.JournalSink(nil)
	if err != nil {
		t.Fatal(err)
	}
	ev := journal.Event{ID: "evt_1", Kind: journal.KindCartAdded, ProductID: 42, Timestamp: 1}
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var kind string
	if err := db.QueryRow(`SELECT kind FROM journal_events WHERE event_id = 'evt_1'`).Scan(&kind); err != nil {
		t.Fatal(err)
	}
	if kind != "cart_added" {
		t.Fatalf("kind: got %q, want cart_added", kind)
	}
}

func TestValidate_SQLiteWithoutPath(t *testing.T) {
	cfg := Default()
	cfg.Journal.Sinks = []SinkConfig{{Type: "sqlite"}}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sqlite without path") {
		t.Fatalf("validate: got %v", err)
	}
}
