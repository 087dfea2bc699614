package wgpudev

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// TextureFormat maps a hal format to its wgpu equivalent.
func TextureFormat(f hal.TextureFormat) (wgpu.TextureFormat, error) {
	switch f {
	case hal.TextureFormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, nil
	case hal.TextureFormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb, nil
	case hal.TextureFormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case hal.TextureFormatBGRA8UnormSrgb:
		return wgpu.TextureFormatBGRA8UnormSrgb, nil
	}
	return wgpu.TextureFormatUndefined, fmt.Errorf("unsupported texture format %s", f)
}

// HalFormat maps a surface format back to the hal. Formats the renderer
// cannot target map to TextureFormatUndefined.
func HalFormat(f wgpu.TextureFormat) hal.TextureFormat {
	switch f {
	case wgpu.TextureFormatRGBA8Unorm:
		return hal.TextureFormatRGBA8Unorm
	case wgpu.TextureFormatRGBA8UnormSrgb:
		return hal.TextureFormatRGBA8UnormSrgb
	case wgpu.TextureFormatBGRA8Unorm:
		return hal.TextureFormatBGRA8Unorm
	case wgpu.TextureFormatBGRA8UnormSrgb:
		return hal.TextureFormatBGRA8UnormSrgb
	}
	return hal.TextureFormatUndefined
}

// BlendState returns the color target blend for mode, or nil to write
// fragments unblended.
func BlendState(mode hal.BlendMode) *wgpu.BlendState {
	if mode != hal.BlendAlpha {
		return nil
	}
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}
