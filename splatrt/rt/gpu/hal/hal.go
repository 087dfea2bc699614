// Package hal is the thin device layer the splat renderer records against.
// wgpudev implements it on top of a WebGPU device, softgpu on the CPU.
//
// The shape follows WebGPU: encoder and pass methods do not return errors;
// a malformed command poisons the encoder and the error surfaces from
// CommandEncoder.Finish.
package hal

// BufferUsage bits carry the same values as WGPUBufferUsage.
type BufferUsage uint32

const (
	BufferUsageMapRead  BufferUsage = 0x0001
	BufferUsageMapWrite BufferUsage = 0x0002
	BufferUsageCopySrc  BufferUsage = 0x0004
	BufferUsageCopyDst  BufferUsage = 0x0008
	BufferUsageIndex    BufferUsage = 0x0010
	BufferUsageVertex   BufferUsage = 0x0020
	BufferUsageUniform  BufferUsage = 0x0040
	BufferUsageStorage  BufferUsage = 0x0080
	BufferUsageIndirect BufferUsage = 0x0100
)

func (u BufferUsage) Has(flag BufferUsage) bool { return u&flag == flag }

type TextureFormat int

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatRGBA8Unorm
	TextureFormatRGBA8UnormSrgb
	TextureFormatBGRA8Unorm
	TextureFormatBGRA8UnormSrgb
)

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatRGBA8UnormSrgb:
		return "rgba8unorm-srgb"
	case TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	case TextureFormatBGRA8UnormSrgb:
		return "bgra8unorm-srgb"
	}
	return "undefined"
}

// Limits is the subset of device limits the renderer checks before allocating.
type Limits struct {
	MaxBufferSize                    uint64
	MaxStorageBufferBindingSize      uint64
	MaxComputeWorkgroupsPerDimension uint32
	MinUniformBufferOffsetAlignment  uint32
}

// DefaultLimits returns the WebGPU default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize:                    256 << 20,
		MaxStorageBufferBindingSize:      128 << 20,
		MaxComputeWorkgroupsPerDimension: 65535,
		MinUniformBufferOffsetAlignment:  256,
	}
}

type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage
	Release()
}

// TextureView is a render target. Views are owned by the presentation layer.
type TextureView interface {
	Release()
}

type ComputePipeline interface {
	Label() string
	Release()
}

type RenderPipeline interface {
	Label() string
	Release()
}

type BindGroup interface {
	Release()
}

type CommandBuffer interface {
	Release()
}

type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
	// Contents, when set, is written to the start of the buffer at creation.
	Contents []byte
}

// ShaderSource is WGSL code plus a label used in diagnostics.
type ShaderSource struct {
	Label string
	Code  string
}

type ComputePipelineDescriptor struct {
	Label      string
	Shader     ShaderSource
	EntryPoint string
}

type BlendMode int

const (
	BlendNone BlendMode = iota
	// BlendAlpha is straight alpha "over": src*a + dst*(1-a), alpha one/one-minus-src-alpha.
	BlendAlpha
)

type RenderPipelineDescriptor struct {
	Label         string
	Shader        ShaderSource
	VertexEntry   string
	FragmentEntry string
	TargetFormat  TextureFormat
	Blend         BlendMode
}

// BindGroupEntry binds a buffer range. Size 0 binds to the end of the buffer.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

// BindGroupDescriptor builds a bind group against the layout the pipeline
// derived for Group.
type BindGroupDescriptor struct {
	Label   string
	Compute ComputePipeline
	Render  RenderPipeline
	Group   uint32
	Entries []BindGroupEntry
}

type Color struct {
	R, G, B, A float64
}

type RenderPassDescriptor struct {
	Label  string
	Target TextureView
	// Clear, when non-nil, clears the target before drawing; otherwise it is loaded.
	Clear *Color
}

type ComputePassEncoder interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, group BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	DispatchWorkgroupsIndirect(args Buffer, offset uint64)
	End()
}

type RenderPassEncoder interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, group BindGroup)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndirect(args Buffer, offset uint64)
	End()
}

type CommandEncoder interface {
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64)
	BeginComputePass(label string) ComputePassEncoder
	BeginRenderPass(desc RenderPassDescriptor) RenderPassEncoder
	Finish() (CommandBuffer, error)
	Release()
}

type Queue interface {
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	Submit(cmds ...CommandBuffer)
}

type Device interface {
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)
	Queue() Queue
	Limits() Limits
}

// AlignUp rounds n up to a multiple of align (a power of two).
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
