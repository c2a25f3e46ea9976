// Package appgen turns a task brief into the files of a static web app with a
// single LLM call.
package appgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/llm"
	"github.com/programme-lv/pagesforge/logger"
)

type Request struct {
	Brief       string
	Checks      []string
	Attachments []course.Attachment
}

// Artifact maps repository paths to file contents.
type Artifact struct {
	Files map[string][]byte
	// FromFallback is set when the LLM failed and the template app was used.
	FromFallback bool
}

type Generator struct {
	llm      llm.Completer
	model    string
	fallback bool
	now      func() time.Time
}

type Option func(*Generator)

// WithFallback serves a static template app when the LLM call fails.
func WithFallback(enabled bool) Option {
	return func(g *Generator) { g.fallback = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(c llm.Completer, model string, opts ...Option) *Generator {
	g := &Generator{llm: c, model: model, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

type generated struct {
	IndexHTML string `json:"index.html"`
	Readme    string `json:"README.md"`
}

func (g *Generator) Generate(ctx context.Context, req Request) (Artifact, error) {
	log := logger.FromContext(ctx)

	atts, err := DecodeAttachments(req.Attachments)
	if err != nil {
		return Artifact{}, fmt.Errorf("decode attachments: %w", err)
	}

	var out generated
	fromFallback := false
	err = llm.CompleteJSON(ctx, g.llm, llm.Prompt{
		Model:       g.model,
		System:      systemPrompt,
		User:        userPrompt(req.Brief, req.Checks, atts),
		Temperature: 0.7,
		MaxTokens:   4000,
	}, &out)
	if err == nil && out.IndexHTML == "" {
		err = fmt.Errorf("completion has no index.html")
	}
	if err != nil {
		if !g.fallback {
			return Artifact{}, fmt.Errorf("generate app: %w", err)
		}
		log.Warn("llm generation failed, using template app", slog.Any("error", err))
		out.IndexHTML, out.Readme = fallbackPages(req.Brief, req.Checks)
		fromFallback = true
	}

	files := map[string][]byte{
		"index.html": []byte(out.IndexHTML),
		"README.md":  []byte(out.Readme),
		"LICENSE":    []byte(MITLicense(g.now())),
	}
	for _, a := range atts {
		if _, taken := files[a.Name]; taken {
			log.Warn("attachment shadows generated file, skipping", slog.String("name", a.Name))
			continue
		}
		files[a.Name] = a.Content
	}

	log.Info("app generated",
		slog.Int("files", len(files)),
		slog.Int("index_bytes", len(out.IndexHTML)),
		slog.Bool("fallback", fromFallback))
	return Artifact{Files: files, FromFallback: fromFallback}, nil
}
