package buildozer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunnerDefaultsLogger(t *testing.T) {
	t.Parallel()

	r := NewRunner("/tmp/ws", nil)
	assert.Equal(t, "/tmp/ws", r.Workspace)
	assert.NotNil(t, r.Log)
}

func TestLastLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FAILED", lastLine([]byte("running...\nstill running\nFAILED\n")))
	assert.Equal(t, "one", lastLine([]byte("one")))
	assert.Equal(t, "", lastLine(nil))
}
