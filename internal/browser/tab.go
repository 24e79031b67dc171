package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// OpenTab creates a stealth tab on the current browser, applies resource
// blocking, runs each init script before any page script on every
// navigation, and navigates to url.
func (m *Manager) OpenTab(ctx context.Context, url string, initScripts ...string) (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, errors.New("browser: no active browser")
	}
	log := m.cfg.Logger

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		blockResources(page, m.cfg.ResourceBlocking)
	}
	for _, js := range initScripts {
		if _, err := page.EvalOnNewDocument(js); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: init script: %w", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	log.Info("browser: tab open", "url", url)
	return page, nil
}
