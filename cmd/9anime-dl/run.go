package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh/spinner"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/adblock"
	"github.com/alvarorichard/9anime-dl/internal/browser"
	"github.com/alvarorichard/9anime-dl/internal/config"
	"github.com/alvarorichard/9anime-dl/internal/downloader"
	"github.com/alvarorichard/9anime-dl/internal/episodes"
	"github.com/alvarorichard/9anime-dl/internal/pacing"
	"github.com/alvarorichard/9anime-dl/internal/pipeline"
	"github.com/alvarorichard/9anime-dl/internal/scraper"
	"github.com/alvarorichard/9anime-dl/internal/util"
)

type runOptions struct {
	url       string
	dub       bool
	debug     bool
	configDir string
}

func run(ctx context.Context, opts runOptions) error {
	dataDir, err := util.DataDir()
	if err != nil {
		return errors.Wrap(err, "failed to resolve data directory")
	}

	dirs := []string{".", dataDir}
	if opts.configDir != "" {
		dirs = []string{opts.configDir}
	}
	cfg, err := config.Load(dirs...)
	if err != nil {
		return err
	}

	util.SetDebugMode(cfg.Debug || opts.debug)
	util.PerfEnabled = util.IsDebug
	util.InitLogger()

	extDir, err := provisionAdblock(ctx, cfg, dataDir)
	if err != nil {
		return err
	}

	drv, err := browser.Launch(ctx, browser.Options{
		Engine:       cfg.Browser.Engine,
		Headless:     cfg.Browser.Headless,
		ExtensionDir: extDir,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start browser")
	}
	defer func() {
		if closeErr := drv.Close(); closeErr != nil {
			util.Warn("Failed to close browser", "err", closeErr)
		}
	}()

	// give the extension time to load its filter lists
	if err := pacing.Sleep(ctx, cfg.Browser.ExtensionSettle); err != nil {
		return err
	}

	s := scraper.New(drv, scraperOptions(cfg, opts.dub))
	if err := s.Open(ctx, opts.url, cfg.Browser.PageSettle); err != nil {
		return errors.Wrapf(err, "failed to open %s", opts.url)
	}

	title, err := s.Title()
	if err != nil {
		return err
	}
	total, err := s.TotalEpisodes()
	if err != nil {
		return err
	}
	if total == 0 {
		return errors.Errorf("no episodes listed for %q", title)
	}

	fmt.Println(util.Title(title))
	selected, err := episodes.Ask(total)
	if err != nil {
		return err
	}

	userAgent, err := s.UserAgent()
	if err != nil {
		return err
	}

	engine, err := downloader.NewEngine(cfg.Download.Engine, isatty.IsTerminal(os.Stdout.Fd()))
	if err != nil {
		return err
	}
	container := cfg.Download.Container
	if cfg.Download.Engine == downloader.EngineNative && container != downloader.NativeContainer {
		util.Info("Native engine writes transport streams", "container", downloader.NativeContainer)
		container = downloader.NativeContainer
	}

	dispatcher := &downloader.Dispatcher{
		Engine: engine,
		Target: downloader.Target{
			BaseDir:   cfg.OutputDir,
			Title:     title,
			Total:     total,
			Container: container,
			UserAgent: userAgent,
			Referer:   cfg.Site.PlayerReferer,
			Retry: downloader.RetryPolicy{
				Attempts:                 cfg.Download.Retries,
				FragmentAttempts:         cfg.Download.FragmentRetries,
				Backoff:                  cfg.Download.RetrySleep,
				SkipUnavailableFragments: cfg.Download.SkipUnavailableFragments,
			},
		},
		SkipExisting: cfg.Download.SkipExisting,
	}

	perf := util.NewPerfTracker()
	runner := &pipeline.Runner{Resolver: s, Downloader: dispatcher, Perf: perf}
	summary, err := runner.Run(ctx, selected)

	report(summary)
	perf.PrintReport(os.Stderr)
	return err
}

func provisionAdblock(ctx context.Context, cfg *config.Config, dataDir string) (string, error) {
	p := adblock.New(dataDir, cfg.Adblock.ReleaseURL)

	var dir string
	var provErr error
	_ = spinner.New().
		Title("Checking uBlock Origin...").
		Type(spinner.Dots).
		Action(func() {
			dir, provErr = p.EnsureInstalled(ctx)
		}).
		Run()

	if provErr != nil {
		return "", errors.Wrap(provErr, "failed to set up ad blocker")
	}
	util.Debug("using extension", "dir", dir)
	return dir, nil
}

func scraperOptions(cfg *config.Config, dub bool) scraper.Options {
	opts := scraper.DefaultOptions()
	opts.Provider = cfg.Site.Provider
	if dub {
		opts.Kind = scraper.Dub
	}
	opts.Settle.Timeout = cfg.Wait.SettleTimeout
	opts.Frame.Timeout = cfg.Wait.IframeTimeout
	return opts
}

func report(summary pipeline.Summary) {
	for _, failure := range summary.Failed {
		util.Warn("Episode failed", "episode", failure.Episode, "err", failure.Err)
	}
	if len(summary.Failed) == 0 && len(summary.Downloaded)+len(summary.Skipped) > 0 {
		fmt.Println(util.Success("All episodes done: " + summary.String()))
		return
	}
	util.Info("Batch finished", "result", summary.String())
}
