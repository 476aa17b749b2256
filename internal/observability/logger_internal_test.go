package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "WARN", parseLogLevel("warning"))
	assert.Equal(t, "DEBUG", parseLogLevel(" Debug "))
	assert.Equal(t, "INFO", parseLogLevel(""))
	assert.Equal(t, "INFO", parseLogLevel("loud"))
}

func TestEnvironment(t *testing.T) {
	t.Setenv("LINGUALENS_ENV", "")
	assert.Equal(t, "production", environment())

	t.Setenv("LINGUALENS_ENV", "staging")
	assert.Equal(t, "staging", environment())
}

func TestBoundPort(t *testing.T) {
	assert.Equal(t, 41234, boundPort("[::]:41234", 0))
	assert.Equal(t, 9464, boundPort("", 9464))
	assert.Equal(t, fallbackMetricsPort, boundPort("garbage", 0))
}
