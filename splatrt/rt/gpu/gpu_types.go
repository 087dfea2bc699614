package gpu

import "encoding/binary"

const (
	// QuadVertices is the vertex count of one splat: two triangles.
	QuadVertices = 6
	// DrawArgsSize is the byte size of an indirect draw record.
	DrawArgsSize = 16
	// InstanceCountOffset is where instance_count lives in the draw record.
	InstanceCountOffset = 4
)

// DrawIndirectArgs mirrors the WebGPU indirect draw record.
type DrawIndirectArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

func (a DrawIndirectArgs) Marshal() []byte {
	buf := make([]byte, DrawArgsSize)
	binary.LittleEndian.PutUint32(buf[0:], a.VertexCount)
	binary.LittleEndian.PutUint32(buf[InstanceCountOffset:], a.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], a.FirstVertex)
	binary.LittleEndian.PutUint32(buf[12:], a.FirstInstance)
	return buf
}

func UnmarshalDrawIndirectArgs(buf []byte) DrawIndirectArgs {
	return DrawIndirectArgs{
		VertexCount:   binary.LittleEndian.Uint32(buf[0:]),
		InstanceCount: binary.LittleEndian.Uint32(buf[InstanceCountOffset:]),
		FirstVertex:   binary.LittleEndian.Uint32(buf[8:]),
		FirstInstance: binary.LittleEndian.Uint32(buf[12:]),
	}
}
