// File: cmd/inspect.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/browser/session"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/engine"
	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/observability"
	"github.com/xkilldash9x/voicepilot/internal/resolver"
	"github.com/xkilldash9x/voicepilot/internal/uistate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// pageFlags pick where the inspection commands get their page from: a local
// HTML file, or the browser section of the config.
type pageFlags struct {
	html  string
	route string
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.html, "html", "", "Serve this HTML file instead of the configured browser")
	cmd.Flags().StringVar(&f.route, "route", "", "Route to open (default: the configured start route, or / with --html)")
}

func (f *pageFlags) open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (engine.Page, error) {
	if f.html != "" {
		markup, err := os.ReadFile(f.html)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.html, err)
		}
		route := f.route
		if route == "" {
			route = "/"
		}
		s := session.New(session.StaticLoader{route: string(markup)}, logger)
		if err := s.Navigate(ctx, route); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}

	pages, err := engine.NewPageFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	p, err := pages(ctx)
	if err != nil {
		return nil, err
	}
	if f.route != "" {
		if err := p.Navigate(ctx, f.route); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open %s: %w", f.route, err)
		}
	}
	return p, nil
}

func newResolveCmd() *cobra.Command {
	var (
		pf   pageFlags
		kind string
	)
	cmd := &cobra.Command{
		Use:   "resolve <target>",
		Short: "Show which element a spoken target resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			page, err := pf.open(ctx, cfg.Browser(), logger)
			if err != nil {
				return err
			}
			defer page.Close()

			doc, err := dom.Load(ctx, page)
			if err != nil {
				return err
			}
			d, err := resolver.New(cfg.Resolver(), logger).Resolve(ctx, doc, args[0], resolver.ElementKind(strings.ToLower(kind)))
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("no %s element matches %q", kind, args[0])
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", string(resolver.KindAny), "Element kind: tab, button, input, dropdown, list, list_item or any")
	return cmd
}

func newExecCmd() *cobra.Command {
	var pf pageFlags
	cmd := &cobra.Command{
		Use:   "exec <action-json>",
		Short: "Execute one action envelope and print the result",
		Long:  `Execute one action, e.g. voicepilot exec --html page.html '{"kind":"click","payload":{"target":"save"}}'. Use - to read the action from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			raw := []byte(args[0])
			if args[0] == "-" {
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			action, err := executor.Unmarshal(raw)
			if err != nil {
				return err
			}

			page, err := pf.open(ctx, cfg.Browser(), logger)
			if err != nil {
				return err
			}
			defer page.Close()

			ex := executor.New(page, resolver.New(cfg.Resolver(), logger), cfg.Executor(), logger)
			res := ex.Execute(ctx, action)
			snap, err := uistate.Capture(ctx, page)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				Result   executor.Result  `json:"result"`
				Snapshot uistate.Snapshot `json:"snapshot"`
			}{res, snap})
		},
	}
	pf.register(cmd)
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var pf pageFlags
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the UI state snapshot an intent request would carry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			page, err := pf.open(ctx, cfg.Browser(), observability.GetLogger())
			if err != nil {
				return err
			}
			defer page.Close()

			snap, err := uistate.Capture(ctx, page)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snap)
		},
	}
	pf.register(cmd)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
