package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/evalhttp"
	"github.com/programme-lv/pagesforge/evalqueue"
	"github.com/programme-lv/pagesforge/evaluator"
	"github.com/programme-lv/pagesforge/httpsrv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", slog.Any("error", err))
	}
	if err := run(); err != nil {
		slog.Error("evaluation api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := conf.LoadInstructor()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connStr, err := conf.PgConnStrFromEnv(ctx)
	if err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := coursedb.NewPgStore(pool)

	var trigger evalhttp.Trigger
	var inline *evalhttp.InlineTrigger
	switch cfg.EvalMode {
	case conf.EvalModeInline:
		ev, release, err := evaluator.NewFromConfig(ctx, cfg, store)
		if err != nil {
			return err
		}
		defer release()
		inline = evalhttp.NewInlineTrigger(ev)
		trigger = inline
	case conf.EvalModeSqs:
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWS.Region))
		if err != nil {
			return err
		}
		trigger = evalhttp.NewQueueTrigger(evalqueue.NewSqsQueue(sqs.NewFromConfig(awsCfg), cfg.EvalSqsURL))
	}
	slog.Info("evaluation mode", slog.String("mode", string(cfg.EvalMode)))

	server := httpsrv.NewHttpServer("evalapi", cfg.CorsOrigins, evalhttp.NewEvalHttpHandler(store, trigger))
	err = server.Start(ctx, ":"+cfg.Port)
	if inline != nil {
		inline.Wait()
	}
	return err
}
