package hud

import (
	"fmt"
	"time"

	"github.com/gekko3d/splat/splatrt/rt/core"
)

// Stats is the per-frame state shown in the overlay.
type Stats struct {
	FPS       float64
	FrameTime time.Duration
	Splats    int
	Settings  core.RenderSettings
}

var (
	textColor  = [4]float32{1, 1, 1, 1}
	debugColor = [4]float32{1, 1, 0, 1}
)

// Items lays the stats out as one text block in the top-left corner. Debug
// adds the key bindings.
func (s Stats) Items(debug bool) []TextItem {
	items := []TextItem{{
		Text: fmt.Sprintf("FPS: %.1f (%.2f ms)\nSplats: %d\nScale: %.2f  SH: %d",
			s.FPS, float64(s.FrameTime.Microseconds())/1000, s.Splats,
			s.Settings.GaussianScaling, s.Settings.SHDegree),
		Position: [2]float32{10, 10},
		Scale:    1,
		Color:    textColor,
	}}
	if debug {
		items = append(items, TextItem{
			Text:     "WASD/QE move, RMB look\n[ ] scale, 0-3 SH degree, F1 HUD",
			Position: [2]float32{10, 90},
			Scale:    1,
			Color:    debugColor,
		})
	}
	return items
}
