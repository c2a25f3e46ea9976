package appgen_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/programme-lv/pagesforge/appgen"
	"github.com/programme-lv/pagesforge/course"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	reply string
	err   error
	user  string
}

func (s *stubLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.user = req.Messages[1].Content
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: s.reply}},
	}}, nil
}

var fixedClock = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

func TestGenerate(t *testing.T) {
	stub := &stubLLM{reply: `{"index.html": "<!DOCTYPE html><title>x</title>", "README.md": "# x"}`}
	g := appgen.NewGenerator(stub, "gpt-test", appgen.WithClock(fixedClock))

	art, err := g.Generate(context.Background(), appgen.Request{
		Brief:  "Sum the sales",
		Checks: []string{"#total-sales shows the sum"},
		Attachments: []course.Attachment{
			{Name: "data.csv", URL: "data:text/csv;base64,cHJvZHVjdCxzYWxlcwpBLDEw"},
		},
	})
	require.NoError(t, err)
	assert.False(t, art.FromFallback)
	assert.Equal(t, "<!DOCTYPE html><title>x</title>", string(art.Files["index.html"]))
	assert.Equal(t, "# x", string(art.Files["README.md"]))
	assert.Contains(t, string(art.Files["LICENSE"]), "Copyright (c) 2026")
	assert.Contains(t, string(art.Files["LICENSE"]), "Permission is hereby granted")
	assert.Equal(t, "product,sales\nA,10", string(art.Files["data.csv"]))

	assert.Contains(t, stub.user, "Brief: Sum the sales")
	assert.Contains(t, stub.user, "- #total-sales shows the sum")
	assert.Contains(t, stub.user, "- data.csv (text/csv)")
}

func TestGenerateFailsWithoutFallback(t *testing.T) {
	g := appgen.NewGenerator(&stubLLM{err: errors.New("rate limited")}, "gpt-test")
	_, err := g.Generate(context.Background(), appgen.Request{Brief: "b"})
	assert.ErrorContains(t, err, "rate limited")

	g = appgen.NewGenerator(&stubLLM{reply: `{"README.md": "only readme"}`}, "gpt-test")
	_, err = g.Generate(context.Background(), appgen.Request{Brief: "b"})
	assert.ErrorContains(t, err, "no index.html")
}

func TestGenerateFallback(t *testing.T) {
	g := appgen.NewGenerator(&stubLLM{err: errors.New("down")}, "gpt-test", appgen.WithFallback(true))
	art, err := g.Generate(context.Background(), appgen.Request{
		Brief:  "Show <b>users</b>",
		Checks: []string{"c1", "c2"},
	})
	require.NoError(t, err)
	assert.True(t, art.FromFallback)
	assert.Contains(t, string(art.Files["index.html"]), "Show &lt;b&gt;users&lt;/b&gt;")
	assert.Contains(t, string(art.Files["index.html"]), "135deg, #667eea 0%")
	assert.Contains(t, string(art.Files["README.md"]), "- c1\n- c2")
	assert.NotEmpty(t, art.Files["LICENSE"])
}

func TestDecodeAttachment(t *testing.T) {
	d, err := appgen.DecodeAttachment(course.Attachment{Name: "a.md", URL: "data:text/markdown,%23%20Hi"})
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", d.Mime)
	assert.Equal(t, "# Hi", string(d.Content))

	// no media type: sniffed from the content
	d, err = appgen.DecodeAttachment(course.Attachment{Name: "r.json", URL: "data:;base64,eyJVU0QiOiAxfQ=="})
	require.NoError(t, err)
	assert.Equal(t, `{"USD": 1}`, string(d.Content))
	assert.Contains(t, d.Mime, "json")

	_, err = appgen.DecodeAttachment(course.Attachment{Name: "x", URL: "https://example.com/x"})
	assert.Error(t, err)
	_, err = appgen.DecodeAttachment(course.Attachment{Name: "x", URL: "data:text/plain;base64,@@@"})
	assert.Error(t, err)
}
