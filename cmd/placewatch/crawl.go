package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"placewatch/internal/agent"
	"placewatch/internal/agent/browser"
	"placewatch/internal/agent/feed"
	"placewatch/internal/bot"
	"placewatch/internal/config"
	"placewatch/internal/fetcher"
	"placewatch/internal/metrics"
	"placewatch/internal/scheduler"
)

// continueNeeded is printed when due targets remain after the run.
const continueNeeded = "CONTINUE_NEEDED"

func crawlCMD() *cobra.Command {
	var signalFile string

	crawl := &cobra.Command{
		Use:   "crawl",
		Short: "Visit due places once, oldest first, within the run budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			ctrl, err := newController(e)
			if err != nil {
				return err
			}

			rep, err := ctrl.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}

			if signalFile != "" {
				if err := os.WriteFile(signalFile, []byte(strconv.FormatBool(rep.MoreWork)), 0o600); err != nil {
					return fmt.Errorf("write signal file: %w", err)
				}
			}
			if rep.MoreWork {
				fmt.Fprintln(cmd.OutOrStdout(), continueNeeded)
			}
			return nil
		},
	}
	crawl.Flags().StringVar(&signalFile, "signal-file", "", "write true/false here when more work remains")

	return crawl
}

func newController(e *env) (*scheduler.Controller, error) {
	cfg := e.cfg

	f := fetcher.New(fetcher.Options{
		SafetyFloor:     cfg.Fetch.SafetyFloor,
		Margin:          cfg.Fetch.Margin,
		HardCap:         cfg.Fetch.HardCap,
		StagnationTicks: cfg.Fetch.StagnationTicks,
		RevealInterval:  cfg.Fetch.RevealInterval,
		TargetTimeout:   cfg.Fetch.TargetTimeout,
		RecentMatch:     cfg.Fetch.RecentMatch,
		SkipUnchanged:   cfg.Fetch.SkipUnchanged,
		Retry:           e.retryPolicy(),
	}, e.store, e.log)

	opts := scheduler.DefaultOptions()
	opts.MaxDuration = cfg.Run.MaxDuration
	opts.BatchSize = cfg.Run.BatchSize
	opts.PaceInterval = cfg.Run.PaceInterval
	opts.RecycleEvery = cfg.Run.RecycleEvery
	opts.MaxConsecutiveFailures = cfg.Run.MaxConsecutiveFailures
	opts.PushURL = cfg.Metrics.PushgatewayURL

	ctrl := scheduler.New(e.store, f, agentFactory(e), opts, e.log)
	ctrl.SetMetrics(metrics.New())

	zones, err := e.zones()
	if err != nil {
		return nil, err
	}
	if zones != nil {
		ctrl.SetZones(zones)
	}

	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.ChatID != 0 {
		n, err := bot.NewNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.ChatID)
		if err != nil {
			return nil, err
		}
		ctrl.SetNotifier(n)
	}
	return ctrl, nil
}

func agentFactory(e *env) agent.Factory {
	cfg := e.cfg
	if cfg.Agent.Kind == config.AgentFeed {
		return feed.NewFactory(&http.Client{Timeout: cfg.Fetch.TargetTimeout})
	}
	return browser.NewFactory(browser.Config{
		RemoteURL: cfg.Agent.BrowserRemote,
		Headless:  cfg.Agent.BrowserHeadless,
		Logger:    e.log,
	})
}
