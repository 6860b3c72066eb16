// Completion: 100% - Growable binary buffer complete
package main

// Buffer is the single growable byte buffer behind the text section and the
// final image. Capacity grows by doubling; all access is offset-based so a
// position obtained before an append stays valid afterwards. Never hand out
// a pointer into data that is held across an append.

const defaultBufferCapacity = 64 * 1024

type Buffer struct {
	data []byte
	size int
}

// NewBuffer creates a buffer with the given initial capacity.
// A capacity of 0 selects the default (64 KiB).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &Buffer{data: make([]byte, capacity)}
}

func (b *Buffer) Len() int { return b.size }

func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the written portion of the buffer. The slice aliases the
// backing array and is invalidated by the next append.
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// ensure grows the backing array by doubling until n more bytes fit.
func (b *Buffer) ensure(n int) {
	need := b.size + n
	if need <= len(b.data) {
		return
	}
	capacity := len(b.data)
	if capacity == 0 {
		capacity = defaultBufferCapacity
	}
	for capacity < need {
		capacity *= 2
	}
	grown := make([]byte, capacity)
	copy(grown, b.data[:b.size])
	b.data = grown
}

func (b *Buffer) WriteU8(v uint8) {
	b.ensure(1)
	b.data[b.size] = v
	b.size++
}

func (b *Buffer) WriteU16(v uint16) {
	b.ensure(2)
	b.data[b.size] = byte(v)
	b.data[b.size+1] = byte(v >> 8)
	b.size += 2
}

func (b *Buffer) WriteU32(v uint32) {
	b.ensure(4)
	b.data[b.size] = byte(v)
	b.data[b.size+1] = byte(v >> 8)
	b.data[b.size+2] = byte(v >> 16)
	b.data[b.size+3] = byte(v >> 24)
	b.size += 4
}

func (b *Buffer) WriteU64(v uint64) {
	b.WriteU32(uint32(v))
	b.WriteU32(uint32(v >> 32))
}

func (b *Buffer) WriteBytes(p []byte) {
	b.ensure(len(p))
	copy(b.data[b.size:], p)
	b.size += len(p)
}

// WriteN writes the byte v n times (used for header padding).
func (b *Buffer) WriteN(v byte, n int) {
	b.ensure(n)
	for i := 0; i < n; i++ {
		b.data[b.size+i] = v
	}
	b.size += n
}

func (b *Buffer) WriteString(s string) {
	b.WriteBytes([]byte(s))
}

// PatchU8 overwrites one byte at a previously written offset.
func (b *Buffer) PatchU8(offset int, v uint8) {
	b.data[offset] = v
}

// PatchU16 overwrites two bytes (little-endian) at a previously written offset.
func (b *Buffer) PatchU16(offset int, v uint16) {
	b.data[offset] = byte(v)
	b.data[offset+1] = byte(v >> 8)
}

// PatchU32 overwrites four bytes (little-endian) at a previously written offset.
// This is the workhorse of the backpatch protocol: jump placeholders and
// import displacements are rewritten through here.
func (b *Buffer) PatchU32(offset int, v uint32) {
	b.data[offset] = byte(v)
	b.data[offset+1] = byte(v >> 8)
	b.data[offset+2] = byte(v >> 16)
	b.data[offset+3] = byte(v >> 24)
}

// PatchU64 overwrites eight bytes (little-endian) at a previously written offset.
func (b *Buffer) PatchU64(offset int, v uint64) {
	b.PatchU32(offset, uint32(v))
	b.PatchU32(offset+4, uint32(v>>32))
}

// ReadU32 reads back four little-endian bytes at offset.
func (b *Buffer) ReadU32(offset int) uint32 {
	return uint32(b.data[offset]) |
		uint32(b.data[offset+1])<<8 |
		uint32(b.data[offset+2])<<16 |
		uint32(b.data[offset+3])<<24
}
