package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/programme-lv/pagesforge/appgen"
	"github.com/programme-lv/pagesforge/buildpipe"
	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/evalnotify"
	"github.com/programme-lv/pagesforge/ghdeploy"
	"github.com/programme-lv/pagesforge/httpsrv"
	"github.com/programme-lv/pagesforge/llm"
	"github.com/programme-lv/pagesforge/studenthttp"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", slog.Any("error", err))
	}

	cfg, err := conf.LoadStudent()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal buildpipe.Journal = buildpipe.NewInMemJournal()
	if cfg.ProgressTable != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWS.Region))
		if err != nil {
			slog.Error("unable to load AWS config", slog.Any("error", err))
			os.Exit(1)
		}
		journal = buildpipe.NewDynamoJournal(dynamodb.NewFromConfig(awsCfg), cfg.ProgressTable)
	}

	gh, err := ghdeploy.NewClient(cfg.GitHub)
	if err != nil {
		slog.Error("failed to create github client", slog.Any("error", err))
		os.Exit(1)
	}

	gen := appgen.NewGenerator(llm.NewClient(cfg.OpenAI), cfg.OpenAI.Model, appgen.WithFallback(cfg.Fallback))
	pipe := buildpipe.NewPipeline(gen, ghdeploy.NewDeployer(gh), evalnotify.NewNotifier(cfg.Secret), journal)
	handler := studenthttp.NewStudentHttpHandler(pipe, cfg.Secret, cfg.Async, studenthttp.WithOwner(cfg.Email))

	server := httpsrv.NewHttpServer("studentd", cfg.CorsOrigins, handler)
	err = server.Start(ctx, ":"+cfg.Port)
	handler.Wait()
	if err != nil {
		slog.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}
