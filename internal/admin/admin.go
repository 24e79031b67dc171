// Package admin serves the daemon's HTTP control surface: health, the
// active session, price quotes and cart line removal.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/optsync/cart"
	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/optstate"
	"github.com/hazyhaar/optsync/session"
	"github.com/hazyhaar/optsync/shield"
	"github.com/hazyhaar/optsync/watch"
)

// Caller runs fn on the engine loop and waits for it. *loop.Loop
// implements it.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// Config wires a Server.
type Config struct {
	Loop Caller
	// Controller returns the live controller. It is called on the loop.
	Controller func() *session.Controller
	// Reloads, if set, reports the catalog watcher.
	Reloads func() watch.Stats
	// RemoveTimeout bounds POST /remove. Default: 10s.
	RemoveTimeout time.Duration
	Logger        *slog.Logger
}

// Server holds the handlers.
type Server struct {
	cfg Config
	log *slog.Logger
}

// New returns a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RemoveTimeout <= 0 {
		cfg.RemoveTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, log: cfg.Logger}
}

// Router returns the chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.log) {
		r.Use(mw)
	}
	r.Get("/healthz", s.handleHealth)
	r.Get("/session", s.handleSession)
	r.Get("/catalog", s.handleCatalog)
	r.Post("/quote", s.handleQuote)
	r.Post("/remove", s.handleRemove)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	var st session.State
	if err := s.cfg.Loop.Call(r.Context(), func() {
		if cur := s.cfg.Controller().Current(); cur != nil {
			st = cur.State()
		}
	}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped", "error": err.Error()})
		return
	}
	if st != "" {
		resp["session"] = st
	}
	if s.cfg.Reloads != nil {
		resp["catalog"] = s.cfg.Reloads()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var (
		st session.Status
		ok bool
	)
	if err := s.cfg.Loop.Call(r.Context(), func() { st, ok = s.cfg.Controller().Status() }); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type productInfo struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
	Removal   bool    `json:"removal,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat, err := s.catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	out := make([]productInfo, 0, len(cat.Products))
	for _, p := range cat.Products {
		out = append(out, productInfo{ID: p.ID, Name: p.Name, BasePrice: p.BasePrice, Removal: p.Removal})
	}
	writeJSON(w, http.StatusOK, out)
}

type quoteRequest struct {
	ProductID int64             `json:"product_id"`
	Options   map[string]string `json:"options"`
}

type quoteResponse struct {
	Formatted string            `json:"formatted"`
	Groups    map[string]string `json:"groups"`
	optstate.Snapshot
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	cat, err := s.catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	p, err := cat.Product(req.ProductID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	snap, err := optstate.Quote(p, req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Formatted: cat.FormatPrice(snap.Total),
		Groups:    snap.Derived,
		Snapshot:  snap,
	})
}

type removeRequest struct {
	Quantity int          `json:"quantity"`
	Options  cart.Options `json:"options"`
}

type result struct {
	item cart.LineItem
	err  error
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RemoveTimeout)
	defer cancel()

	done := make(chan result, 1)
	var startErr error
	if err := s.cfg.Loop.Call(ctx, func() {
		cur := s.cfg.Controller().Current()
		if cur == nil {
			startErr = session.ErrNoSession
			return
		}
		item := cart.LineItem{ID: cur.Product.ID, Quantity: req.Quantity, Options: req.Options}
		startErr = s.cfg.Controller().Remove(item, func(it cart.LineItem, err error) {
			done <- result{it, err}
		})
	}); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if startErr != nil {
		writeError(w, statusOf(startErr), startErr)
		return
	}

	select {
	case res := <-done:
		if res.err != nil {
			writeError(w, statusOf(res.err), res.err)
			return
		}
		writeJSON(w, http.StatusOK, res.item)
	case <-ctx.Done():
		writeError(w, http.StatusGatewayTimeout, ctx.Err())
	}
}

func (s *Server) catalog(ctx context.Context) (*catalog.Catalog, error) {
	var cat *catalog.Catalog
	err := s.cfg.Loop.Call(ctx, func() { cat = s.cfg.Controller().Catalog() })
	return cat, err
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, cart.ErrNotInCart),
		errors.Is(err, catalog.ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, session.ErrRemovalDisabled):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
