package splat

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("splat", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{"-width", "640", "-cloud", "grid", "-points", "10", "-scale", "1.5", "-sh", "2", "-headless", "out.png"}))
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 720, cfg.Height)
	assert.Equal(t, CloudGrid, cfg.Cloud)
	assert.Equal(t, 10, cfg.Points)
	assert.Equal(t, float32(1.5), cfg.GaussianScaling)
	assert.Equal(t, 2, cfg.SHDegree)
	assert.Equal(t, "out.png", cfg.Headless)
	assert.NoError(t, cfg.Validate())

	fs = flag.NewFlagSet("splat", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	cfg.RegisterFlags(fs)
	assert.Error(t, fs.Parse([]string{"-scale", "big"}))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Width = 0
	cfg.Points = -1
	cfg.Cloud = "torus"
	cfg.SHDegree = 4
	cfg.GaussianScaling = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"window size", "points", "torus", "sh degree", "scaling"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoggerLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewLoggerTo(&out, &errOut, "test", false)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warnf("careful")
	l.Errorf("broken")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "[test] INFO: shown 2")
	assert.Equal(t, 2, strings.Count(errOut.String(), "\n"))

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("visible")
	assert.Contains(t, out.String(), "[test] DEBUG: visible")
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	require.NotNil(t, l)
	assert.False(t, l.DebugEnabled())
	l.Infof("dropped")

	d := NewDefaultLogger("", false)
	assert.Same(t, d, OrNop(d))
}
