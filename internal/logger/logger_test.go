package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuffer(t *testing.T, verboseOn bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseOn)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestVerboseOutput(t *testing.T) {
	buf := withBuffer(t, true)

	Section("Retrieve")
	Debug("candidates=%d", 3)
	Info("collection %s ready", "jobs")
	Warn("slow call")

	out := buf.String()
	assert.Contains(t, out, "=== Retrieve ===")
	assert.Contains(t, out, "[DEBUG] candidates=3")
	assert.Contains(t, out, "[INFO] collection jobs ready")
	assert.Contains(t, out, "[WARN] slow call")
	assert.True(t, IsVerbose())
}

func TestQuietByDefault(t *testing.T) {
	buf := withBuffer(t, false)

	Section("Retrieve")
	Debug("hidden")
	Warn("hidden")

	assert.Empty(t, buf.String())
}
