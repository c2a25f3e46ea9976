package evaluator

import (
	"context"
	"log/slog"

	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/ghdeploy"
	"github.com/programme-lv/pagesforge/llm"
	"github.com/programme-lv/pagesforge/logger"
	"github.com/programme-lv/pagesforge/s3bucket"
)

// NewFromConfig builds an evaluator reading repositories through the GitHub
// API. The LLM, browser and screenshot bucket are used when configured; a
// browser that fails to start only disables the functional checks. The
// returned func releases the browser.
func NewFromConfig(ctx context.Context, cfg conf.Instructor, store coursedb.Store) (*Evaluator, func(), error) {
	log := logger.FromContext(ctx)

	gh, err := ghdeploy.NewClient(cfg.GitHub)
	if err != nil {
		return nil, nil, err
	}
	var opts []Option
	if cfg.OpenAI.APIKey != "" {
		opts = append(opts, WithLLM(llm.NewClient(cfg.OpenAI), cfg.OpenAI.Model))
	}

	release := func() {}
	browser, err := NewRodBrowser(ctx, cfg.BrowserBin)
	if err != nil {
		log.Warn("headless browser unavailable", slog.Any("error", err))
	} else {
		opts = append(opts, WithBrowser(browser))
		release = func() { _ = browser.Close() }
	}

	if cfg.ScreenshotBucket != "" {
		bucket, err := s3bucket.NewS3Bucket(ctx, cfg.AWS.Region, cfg.ScreenshotBucket)
		if err != nil {
			release()
			return nil, nil, err
		}
		opts = append(opts, WithScreenshots(bucket))
	}
	return New(store, ghdeploy.NewRepoReader(gh), opts...), release, nil
}
