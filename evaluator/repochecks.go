package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/ghdeploy"
	"github.com/programme-lv/pagesforge/llm"
)

const (
	readmePassScore = 70
	rubricPassScore = 60
	rubricMaxChars  = 3000
)

// fetch reads a file and describes a failure as a check reason.
func (e *Evaluator) fetch(ctx context.Context, subm course.Submission, path string) ([]byte, string, error) {
	content, err := e.files.ReadFile(ctx, subm.RepoURL, subm.CommitSHA, path)
	if errors.Is(err, ghdeploy.ErrFileNotFound) {
		return nil, fmt.Sprintf("No %s found", path), err
	}
	if err != nil {
		return nil, fmt.Sprintf("Could not read %s", path), err
	}
	return content, "", nil
}

func (e *Evaluator) checkLicense(ctx context.Context, subm course.Submission) course.CheckResult {
	const name = "MIT License"
	content, reason, err := e.fetch(ctx, subm, "LICENSE")
	if err != nil {
		return outcome(course.CheckLicense, name, false, reason, err.Error())
	}
	lower := strings.ToLower(string(content))
	logs := "License content: " + preview(content, 200)
	if strings.Contains(lower, "mit") && strings.Contains(lower, "permission is hereby granted") {
		return outcome(course.CheckLicense, name, true, "MIT license found", logs)
	}
	return outcome(course.CheckLicense, name, false, "License file exists but may not be MIT", logs)
}

type llmScore struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

const readmePrompt = `Evaluate the quality of this README.md file.

README Content:
%s

Rate the README on a scale of 0-100 based on:
1. Completeness (has summary, setup, usage sections)
2. Clarity and professionalism
3. Code explanation
4. License mention

Respond with JSON: {"score": 0-100, "reason": "brief explanation"}`

const rubricPrompt = `Evaluate the quality of this web application code.

Code:
%s...

Rate the code on a scale of 0-100 based on:
1. Code structure and organization
2. Best practices and modern JavaScript
3. Error handling
4. Comments and documentation

Respond with JSON: {"score": 0-100, "reason": "brief explanation"}`

const reviewerSystemPrompt = "You are a strict reviewer of student web projects. Answer only with JSON."

func (e *Evaluator) review(ctx context.Context, prompt string) (llmScore, error) {
	var out llmScore
	err := llm.CompleteJSON(ctx, e.llm, llm.Prompt{
		Model:       e.model,
		System:      reviewerSystemPrompt,
		User:        prompt,
		Temperature: 0.3,
		MaxTokens:   500,
	}, &out)
	if err != nil {
		return llmScore{}, err
	}
	if out.Score < 0 || out.Score > 100 {
		return llmScore{}, fmt.Errorf("score %d out of range", out.Score)
	}
	return out, nil
}

func (e *Evaluator) checkReadme(ctx context.Context, subm course.Submission) course.CheckResult {
	const name = "README Quality"
	content, reason, err := e.fetch(ctx, subm, "README.md")
	if err != nil {
		return outcome(course.CheckReadme, name, false, reason, err.Error())
	}
	if e.llm == nil {
		return outcome(course.CheckReadme, name, true, "README.md present", "LLM review disabled")
	}
	scored, err := e.review(ctx, fmt.Sprintf(readmePrompt, content))
	if err != nil {
		return outcome(course.CheckReadme, name, false, "Error evaluating README", err.Error())
	}
	return outcome(course.CheckReadme, name, scored.Score >= readmePassScore, scored.Reason,
		fmt.Sprintf("LLM Score: %d/100", scored.Score))
}

func (e *Evaluator) checkRubric(ctx context.Context, subm course.Submission) course.CheckResult {
	const name = "Code Quality"
	if e.llm == nil {
		return outcome(course.CheckRubric, name, false, "Code review skipped", "LLM review disabled")
	}
	content, reason, err := e.fetch(ctx, subm, "index.html")
	if err != nil {
		return outcome(course.CheckRubric, name, false, reason, err.Error())
	}
	code := string(content)
	if len(code) > rubricMaxChars {
		code = code[:rubricMaxChars]
	}
	scored, err := e.review(ctx, fmt.Sprintf(rubricPrompt, code))
	if err != nil {
		return outcome(course.CheckRubric, name, false, "Error evaluating code", err.Error())
	}
	return outcome(course.CheckRubric, name, scored.Score >= rubricPassScore, scored.Reason,
		fmt.Sprintf("LLM Score: %d/100", scored.Score))
}
