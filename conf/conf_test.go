package conf_test

import (
	"context"
	"testing"

	"github.com/programme-lv/pagesforge/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStudentRequiresSecret(t *testing.T) {
	t.Setenv("STUDENT_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	_, err := conf.LoadStudent()
	require.Error(t, err)
}

func TestLoadStudentDefaults(t *testing.T) {
	t.Setenv("STUDENT_SECRET", "s3cret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("PORT", "")
	t.Setenv("BUILD_ASYNC", "")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	c, err := conf.LoadStudent()
	require.NoError(t, err)
	assert.Equal(t, "5000", c.Port)
	assert.True(t, c.Async)
	assert.False(t, c.Fallback)
	assert.Equal(t, "gpt-4-turbo-preview", c.OpenAI.Model)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.CorsOrigins)
}

func TestLoadInstructorEvalMode(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://eval.example.com/")
	t.Setenv("EVAL_MODE", "sqs")
	t.Setenv("EVAL_SQS_URL", "")
	_, err := conf.LoadInstructor()
	require.Error(t, err)

	t.Setenv("EVAL_SQS_URL", "https://sqs.eu-central-1.amazonaws.com/1/evals")
	c, err := conf.LoadInstructor()
	require.NoError(t, err)
	assert.Equal(t, conf.EvalModeSqs, c.EvalMode)
	assert.Equal(t, "https://eval.example.com/api/submit", c.EvaluationURL())

	t.Setenv("EVAL_MODE", "later")
	_, err = conf.LoadInstructor()
	require.Error(t, err)
}

func TestPgConnStrPrefersDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/course")
	s, err := conf.PgConnStrFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/course", s)
}

func TestPgConnStrFromLocalParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PW", "pw")
	t.Setenv("POSTGRES_USER", "course")
	t.Setenv("POSTGRES_DB", "course")
	t.Setenv("POSTGRES_PORT", "")
	t.Setenv("POSTGRES_SSLMODE", "")

	s, err := conf.PgConnStrFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=course password=pw dbname=course sslmode=disable", s)
}
