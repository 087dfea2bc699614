package softgpu

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// ComputeKernel is the Go body behind a compute entry point.
type ComputeKernel struct {
	WorkgroupSize uint32
	// Bind resolves the bindings once per dispatch and returns the
	// per-invocation body. Bodies of one dispatch run concurrently; shared
	// words must be touched only through sync/atomic.
	Bind func(b Bindings) (func(globalID uint32) error, error)
}

// RenderProgram rasterizes one draw. Instances must be emitted in order.
type RenderProgram func(ctx *DrawContext) error

// DrawContext is the state of one draw.
type DrawContext struct {
	Bindings      Bindings
	Target        *Texture
	Blend         hal.BlendMode
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32

	fragments int
}

// Shade blends a straight-alpha fragment into pixel (x, y) of the target.
func (c *DrawContext) Shade(x, y int, src [4]float32) {
	if x < 0 || y < 0 || x >= c.Target.width || y >= c.Target.height {
		return
	}
	c.fragments++
	if c.Blend == hal.BlendNone {
		c.Target.set(x, y, src)
		return
	}
	dst := c.Target.RGBA(x, y)
	a := src[3]
	c.Target.set(x, y, [4]float32{
		src[0]*a + dst[0]*(1-a),
		src[1]*a + dst[1]*(1-a),
		src[2]*a + dst[2]*(1-a),
		a + dst[3]*(1-a),
	})
}

func (d *Device) execute(cb *CommandBuffer) error {
	d.execMu.Lock()
	defer d.execMu.Unlock()
	for _, c := range cb.cmds {
		if err := c.execute(d); err != nil {
			return err
		}
	}
	return nil
}

type copyCmd struct {
	src, dst             *Buffer
	srcOffset, dstOffset uint64
	size                 uint64
}

func (c *copyCmd) execute(d *Device) error {
	if c.src.released || c.dst.released {
		return fmt.Errorf("copy %q -> %q: %w", c.src.label, c.dst.label, ErrReleased)
	}
	copy(c.dst.bytes()[c.dstOffset:c.dstOffset+c.size], c.src.bytes()[c.srcOffset:c.srcOffset+c.size])
	return nil
}

type clearCmd struct {
	target *Texture
	color  hal.Color
}

func (c *clearCmd) execute(d *Device) error {
	c.target.clear(c.color)
	return nil
}

type dispatchCmd struct {
	pipeline *ComputePipeline
	groups   Bindings
	size     [3]uint32
	indirect *Buffer
	offset   uint64
}

func (c *dispatchCmd) execute(d *Device) error {
	size := c.size
	if c.indirect != nil {
		args := c.indirect.bytes()[c.offset:]
		size = [3]uint32{
			binary.LittleEndian.Uint32(args[0:]),
			binary.LittleEndian.Uint32(args[4:]),
			binary.LittleEndian.Uint32(args[8:]),
		}
		// Oversized indirect dispatches are dropped, as on WebGPU backends
		// that validate indirect args.
		limit := d.limits.MaxComputeWorkgroupsPerDimension
		if size[0] > limit || size[1] > limit || size[2] > limit {
			size = [3]uint32{}
		}
	}

	d.mu.Lock()
	d.dispatches = append(d.dispatches, DispatchRecord{
		Pipeline:   c.pipeline.label,
		Workgroups: size,
		Indirect:   c.indirect != nil,
	})
	d.mu.Unlock()

	groups := uint64(size[0]) * uint64(size[1]) * uint64(size[2])
	if groups == 0 {
		return nil
	}
	body, err := c.pipeline.kernel.Bind(c.groups)
	if err != nil {
		return fmt.Errorf("dispatch %q: %w", c.pipeline.label, err)
	}

	wgSize := c.pipeline.kernel.WorkgroupSize
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for wg := uint64(0); wg < groups; wg++ {
		base := uint32(wg) * wgSize
		g.Go(func() error {
			for local := uint32(0); local < wgSize; local++ {
				if err := body(base + local); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch %q: %w", c.pipeline.label, err)
	}
	return nil
}

type drawCmd struct {
	pipeline *RenderPipeline
	groups   Bindings
	target   *Texture
	args     [4]uint32
	indirect *Buffer
	offset   uint64
}

func (c *drawCmd) execute(d *Device) error {
	args := c.args
	if c.indirect != nil {
		raw := c.indirect.bytes()[c.offset:]
		for i := range args {
			args[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
	}

	ctx := &DrawContext{
		Bindings:      c.groups,
		Target:        c.target,
		Blend:         c.pipeline.blend,
		VertexCount:   args[0],
		InstanceCount: args[1],
		FirstVertex:   args[2],
		FirstInstance: args[3],
	}
	var err error
	if ctx.VertexCount > 0 && ctx.InstanceCount > 0 {
		err = c.pipeline.program(ctx)
	}

	d.mu.Lock()
	d.draws = append(d.draws, DrawRecord{
		Pipeline:      c.pipeline.label,
		Indirect:      c.indirect != nil,
		VertexCount:   args[0],
		InstanceCount: args[1],
		Fragments:     ctx.fragments,
	})
	d.mu.Unlock()

	if err != nil {
		return fmt.Errorf("draw %q: %w", c.pipeline.label, err)
	}
	return nil
}
