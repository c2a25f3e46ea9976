// Package conf reads process configuration once, at startup. Components get
// the resulting structs through their constructors.
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type OpenAI struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type GitHub struct {
	Token  string
	APIURL string // empty means api.github.com
}

type AWS struct {
	Region string
}

// Student configures cmd/studentd.
type Student struct {
	Port          string
	Secret        string
	Email         string
	OpenAI        OpenAI
	GitHub        GitHub
	AWS           AWS
	ProgressTable string // DynamoDB table for the build journal; in-memory when empty
	Async         bool
	Fallback      bool // serve a template app when the LLM call fails
	CorsOrigins   []string
}

// EvalMode selects how the evaluation API hands submissions to the evaluator.
type EvalMode string

const (
	EvalModeInline EvalMode = "inline"
	EvalModeSqs    EvalMode = "sqs"
	EvalModeBatch  EvalMode = "batch"
)

// Instructor configures cmd/evalapi and cmd/coursectl.
type Instructor struct {
	Port             string
	APIBaseURL       string
	OpenAI           OpenAI
	GitHub           GitHub
	AWS              AWS
	EvalMode         EvalMode
	EvalSqsURL       string
	ScreenshotBucket string
	TemplatesPath    string
	BrowserBin       string
	CorsOrigins      []string
}

// EvaluationURL is where student endpoints post their submissions.
func (c Instructor) EvaluationURL() string {
	return strings.TrimRight(c.APIBaseURL, "/") + "/api/submit"
}

func LoadStudent() (Student, error) {
	c := Student{
		Port:          envOr("PORT", "5000"),
		Secret:        os.Getenv("STUDENT_SECRET"),
		Email:         os.Getenv("STUDENT_EMAIL"),
		OpenAI:        loadOpenAI(),
		GitHub:        loadGitHub(),
		AWS:           AWS{Region: envOr("AWS_REGION", "eu-central-1")},
		ProgressTable: os.Getenv("PROGRESS_TABLE"),
		Async:         envBool("BUILD_ASYNC", true),
		Fallback:      envBool("GENERATOR_FALLBACK", false),
		CorsOrigins:   envList("CORS_ORIGINS"),
	}
	if c.Secret == "" {
		return Student{}, fmt.Errorf("STUDENT_SECRET is not set")
	}
	if c.OpenAI.APIKey == "" {
		return Student{}, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if c.GitHub.Token == "" {
		return Student{}, fmt.Errorf("GITHUB_TOKEN is not set")
	}
	return c, nil
}

func LoadInstructor() (Instructor, error) {
	c := Instructor{
		Port:             envOr("EVALUATION_PORT", "5001"),
		APIBaseURL:       envOr("API_BASE_URL", "http://localhost:5001"),
		OpenAI:           loadOpenAI(),
		GitHub:           loadGitHub(),
		AWS:              AWS{Region: envOr("AWS_REGION", "eu-central-1")},
		EvalMode:         EvalMode(envOr("EVAL_MODE", string(EvalModeInline))),
		EvalSqsURL:       os.Getenv("EVAL_SQS_URL"),
		ScreenshotBucket: os.Getenv("SCREENSHOT_BUCKET"),
		TemplatesPath:    os.Getenv("TEMPLATES_PATH"),
		BrowserBin:       os.Getenv("BROWSER_BIN"),
		CorsOrigins:      envList("CORS_ORIGINS"),
	}
	switch c.EvalMode {
	case EvalModeInline, EvalModeBatch:
	case EvalModeSqs:
		if c.EvalSqsURL == "" {
			return Instructor{}, fmt.Errorf("EVAL_MODE=sqs requires EVAL_SQS_URL")
		}
	default:
		return Instructor{}, fmt.Errorf("unknown EVAL_MODE %q", c.EvalMode)
	}
	return c, nil
}

func loadOpenAI() OpenAI {
	return OpenAI{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   envOr("OPENAI_MODEL", "gpt-4-turbo-preview"),
		Timeout: 2 * time.Minute,
	}
}

func loadGitHub() GitHub {
	return GitHub{
		Token:  os.Getenv("GITHUB_TOKEN"),
		APIURL: os.Getenv("GITHUB_API_URL"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
