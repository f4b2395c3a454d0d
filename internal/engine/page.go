// File: internal/engine/page.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/browser/cdp"
	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/browser/session"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// Page is a dom.Page the engine owns and must release.
type Page interface {
	dom.Page
	Close()
}

// PageFactory opens the page for a new session, already showing the start
// route.
type PageFactory func(ctx context.Context) (Page, error)

// NewPageFactory picks the page implementation from the browser section.
func NewPageFactory(cfg config.BrowserConfig, logger *zap.Logger) (PageFactory, error) {
	start := cfg.StartRoute
	if start == "" {
		start = "/"
	}

	switch strings.ToLower(cfg.Mode) {
	case "remote":
		return func(ctx context.Context) (Page, error) {
			// The tab outlives the request that opened it.
			p, err := cdp.New(context.WithoutCancel(ctx), cfg, logger)
			if err != nil {
				return nil, err
			}
			if err := p.Navigate(ctx, start); err != nil {
				p.Close()
				return nil, fmt.Errorf("failed to open start route: %w", err)
			}
			return p, nil
		}, nil

	case "session", "":
		loader, err := loaderFor(cfg)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (Page, error) {
			s := session.New(loader, logger)
			if err := s.Navigate(ctx, start); err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to open start route: %w", err)
			}
			return s, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
}

func loaderFor(cfg config.BrowserConfig) (session.Loader, error) {
	switch {
	case cfg.StaticDir != "":
		return session.DirLoader{Dir: cfg.StaticDir}, nil
	case cfg.BaseURL != "":
		return session.NewHTTPLoader(cfg.BaseURL, cfg.NavigationTimeout)
	}
	return nil, fmt.Errorf("session mode needs browser.static_dir or browser.base_url")
}
