// Package browser runs the Chrome instance that hosts the storefront tab:
// local launch or remote connection, Xvfb for headful mode, and recycling
// on memory pressure or age.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string
	// Headful runs a visible Chrome on XvfbDisplay, started with
	// XvfbScreen (WxHxDepth) unless an X server already owns the display.
	Headful     bool
	XvfbDisplay string
	XvfbScreen  string

	// MemoryLimit is the JS heap size in bytes that triggers a recycle.
	// Default: 1GB.
	MemoryLimit int64
	// RecycleInterval is the maximum lifetime of a Chrome process.
	// Default: 4h.
	RecycleInterval time.Duration
	// CheckInterval is the monitor period. Default: 30s.
	CheckInterval time.Duration

	// ResourceBlocking lists resource types tabs refuse to load.
	ResourceBlocking []string
	// NavigateTimeout bounds OpenTab. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.XvfbScreen == "" {
		c.XvfbScreen = "1920x1080x24"
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process.
type Manager struct {
	cfg       Config
	mu        sync.RWMutex
	browser   *rod.Browser
	lnch      *launcher.Launcher
	xvfb      *display
	startAt   time.Time
	closed    bool
	onRecycle func(*rod.Browser)
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// OnRecycle registers fn to run with the new browser after every recycle.
// The storefront tab is reopened from there.
func (m *Manager) OnRecycle(fn func(*rod.Browser)) {
	m.mu.Lock()
	m.onRecycle = fn
	m.mu.Unlock()
}

// Start launches or connects to Chrome and starts the monitor, which stops
// with ctx.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	go m.monitor(ctx)
	return b, nil
}

// Browser returns the current browser handle.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome and runs the OnRecycle callback.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()
	b, err := m.launch()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	cb := m.onRecycle
	m.mu.Unlock()

	if cb != nil {
		cb(b)
	}
	m.cfg.Logger.Info("browser: recycled")
	return nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Headful && m.cfg.RemoteURL == "" {
		if m.xvfb == nil {
			m.xvfb = newDisplay(m.cfg.XvfbDisplay, m.cfg.XvfbScreen, m.cfg.Logger)
		}
		if err := m.xvfb.start(); err != nil {
			return nil, err
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(!m.cfg.Headful)
		if m.cfg.Headful {
			l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.xvfb != nil {
		m.xvfb.stop()
	}
}

func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, b, startAt := m.closed, m.browser, m.startAt
		m.mu.RUnlock()
		if closed {
			return
		}
		if b == nil {
			continue
		}

		reason := ""
		if time.Since(startAt) > m.cfg.RecycleInterval {
			reason = "interval"
		} else if used, err := heapUsage(b); err != nil {
			log.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
			log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
		}
		if reason == "" {
			continue
		}
		if err := m.Recycle(); err != nil {
			log.Error("browser: recycle failed", "reason", reason, "error", err)
		}
	}
}

// heapUsage reads the JS heap of the first page as a proxy for the whole
// browser.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, errors.New("no pages")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
