package cmd

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/config"
)

func TestResolveFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = config.OutputFormatYAML

	format, err := resolveFormat(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, config.OutputFormatYAML, format)

	format, err = resolveFormat(cfg, "json")
	require.NoError(t, err)
	assert.Equal(t, config.OutputFormatJSON, format)

	_, err = resolveFormat(cfg, "csv")
	assert.ErrorContains(t, err, "invalid output format")
}

func TestWriteOutput(t *testing.T) {
	v := struct {
		Name string `json:"name" yaml:"name"`
	}{Name: "Home"}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "Home\n")
		return err
	}

	var out bytes.Buffer
	require.NoError(t, writeOutput(&out, config.OutputFormatText, v, text))
	assert.Equal(t, "Home\n", out.String())

	out.Reset()
	require.NoError(t, writeOutput(&out, config.OutputFormatJSON, v, text))
	assert.JSONEq(t, `{"name":"Home"}`, out.String())

	out.Reset()
	require.NoError(t, writeOutput(&out, config.OutputFormatYAML, v, text))
	assert.Equal(t, "name: Home\n", out.String())
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(nil))

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)
	assert.Equal(t, "2024-03-01 12:30:00", formatTime(&ts))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "a long ...", truncate("a long string", 10))
}
