package headless

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/splat/splatrt/rt/core"
)

func coverage(t *testing.T, pix []byte) int {
	t.Helper()
	n := 0
	for i := 3; i < len(pix); i += 4 {
		if pix[i] != 0 {
			n++
		}
	}
	return n
}

func TestRenderSphere(t *testing.T) {
	cloud := core.GenerateSphereCloud(200, 2, 1)
	img, err := Render(cloud, Options{Width: 48, Height: 32, Settings: core.DefaultRenderSettings()})
	require.NoError(t, err)

	assert.Equal(t, 48, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
	assert.Greater(t, coverage(t, img.Pix), 0)

	// The sphere is centered; the corners stay empty.
	assert.Zero(t, img.RGBAAt(0, 0).A)
	assert.Zero(t, img.RGBAAt(47, 31).A)
}

func TestRenderEmptyCloud(t *testing.T) {
	img, err := Render(core.NewPointCloud(nil), Options{Width: 16, Height: 16, Settings: core.DefaultRenderSettings()})
	require.NoError(t, err)
	assert.Zero(t, coverage(t, img.Pix))
}

func TestRenderHUD(t *testing.T) {
	opts := Options{Width: 200, Height: 80, Settings: core.DefaultRenderSettings()}
	plain, err := Render(core.NewPointCloud(nil), opts)
	require.NoError(t, err)

	opts.HUD = true
	withHUD, err := Render(core.NewPointCloud(nil), opts)
	require.NoError(t, err)

	assert.Zero(t, coverage(t, plain.Pix))
	assert.Greater(t, coverage(t, withHUD.Pix), 0)
}

func TestRenderRejectsBadInput(t *testing.T) {
	_, err := Render(core.NewPointCloud(nil), Options{Width: 0, Height: 10})
	assert.Error(t, err)

	_, err = Render(core.GenerateSphereCloud(4, 1, 1), Options{Width: 8, Height: 8, Settings: core.RenderSettings{GaussianScaling: 1, SHDegree: 9}})
	assert.Error(t, err)
}

func TestWritePNG(t *testing.T) {
	img, err := Render(core.GenerateGridCloud(27, 0.5, 1), Options{Width: 20, Height: 10, Settings: core.DefaultRenderSettings()})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, WritePNG(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	assert.Error(t, WritePNG(filepath.Join(t.TempDir(), "missing", "frame.png"), img))
}

func TestRenderWithShaderValidation(t *testing.T) {
	img, err := Render(core.GenerateSphereCloud(50, 2, 1), Options{
		Width:           24,
		Height:          16,
		Settings:        core.DefaultRenderSettings(),
		ValidateShaders: true,
	})
	require.NoError(t, err)
	assert.Greater(t, coverage(t, img.Pix), 0)
}
