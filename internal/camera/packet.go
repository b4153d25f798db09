// Package camera receives RGB-D frames from the head camera daemon over UDP.
//
// The daemon encodes each frame as PNG (8-bit RGB color, 16-bit grayscale
// depth) plus a JSON info record, splits the encoded bytes into MTU-sized
// chunks and sends one chunk per datagram. This package reassembles the
// chunks back into complete frames.
package camera

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Camera chunk packet structure constants.
// These define the fixed format of UDP datagrams sent by the camera daemon.
const (
	HeaderSize      = 16     // Chunk header size in bytes
	ProtocolVersion = 1      // Current chunk protocol version
	MaxDatagramSize = 1472   // Largest datagram the daemon emits (MTU safe)
	MaxChunkPayload = MaxDatagramSize - HeaderSize
	MaxFrameBytes   = 8 << 20 // Upper bound on a reassembled frame
)

// Magic marks the start of every camera chunk datagram.
var Magic = []byte("HBCF")

// FrameKind identifies the payload type of a chunk stream.
type FrameKind uint8

const (
	KindRGB   FrameKind = iota // 8-bit RGB PNG
	KindDepth                  // 16-bit grayscale PNG, millimeter-scaled
	KindInfo                   // JSON frame metadata
)

func (k FrameKind) String() string {
	switch k {
	case KindRGB:
		return "rgb"
	case KindDepth:
		return "depth"
	case KindInfo:
		return "info"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ChunkHeader is the fixed 16-byte header at the start of each datagram.
//
// Layout (little-endian):
//
//	0:4   magic "HBCF"
//	4     protocol version
//	5     frame kind
//	6:8   frame sequence number
//	8:10  chunk index
//	10:12 chunk count
//	12:16 total frame size in bytes
type ChunkHeader struct {
	Version    uint8
	Kind       FrameKind
	Sequence   uint16
	ChunkIndex uint16
	ChunkCount uint16
	FrameSize  uint32
}

// EncodeChunk serializes a header and payload into a single datagram.
func EncodeChunk(h ChunkHeader, payload []byte) []byte {
	packet := make([]byte, HeaderSize+len(payload))
	copy(packet[0:4], Magic)
	packet[4] = h.Version
	packet[5] = uint8(h.Kind)
	binary.LittleEndian.PutUint16(packet[6:8], h.Sequence)
	binary.LittleEndian.PutUint16(packet[8:10], h.ChunkIndex)
	binary.LittleEndian.PutUint16(packet[10:12], h.ChunkCount)
	binary.LittleEndian.PutUint32(packet[12:16], h.FrameSize)
	copy(packet[HeaderSize:], payload)
	return packet
}

// ParseChunk validates a datagram and splits it into header and payload.
func ParseChunk(packet []byte) (ChunkHeader, []byte, error) {
	var h ChunkHeader
	if len(packet) < HeaderSize {
		return h, nil, fmt.Errorf("packet too short: %d bytes (header is %d)", len(packet), HeaderSize)
	}
	if !bytes.Equal(packet[0:4], Magic) {
		return h, nil, fmt.Errorf("bad magic %q", packet[0:4])
	}

	h.Version = packet[4]
	if h.Version != ProtocolVersion {
		return h, nil, fmt.Errorf("unsupported protocol version %d", h.Version)
	}

	h.Kind = FrameKind(packet[5])
	if h.Kind > KindInfo {
		return h, nil, fmt.Errorf("unknown frame kind %d", packet[5])
	}

	h.Sequence = binary.LittleEndian.Uint16(packet[6:8])
	h.ChunkIndex = binary.LittleEndian.Uint16(packet[8:10])
	h.ChunkCount = binary.LittleEndian.Uint16(packet[10:12])
	h.FrameSize = binary.LittleEndian.Uint32(packet[12:16])

	if h.ChunkCount == 0 {
		return h, nil, fmt.Errorf("chunk count is zero")
	}
	if h.ChunkIndex >= h.ChunkCount {
		return h, nil, fmt.Errorf("chunk index %d out of range (count %d)", h.ChunkIndex, h.ChunkCount)
	}
	if h.FrameSize == 0 || h.FrameSize > MaxFrameBytes {
		return h, nil, fmt.Errorf("frame size %d out of range (max %d)", h.FrameSize, MaxFrameBytes)
	}

	return h, packet[HeaderSize:], nil
}

// ChunkFrame splits an encoded frame into datagrams ready to send. It is used
// by the daemon side and by tests feeding the assembler.
func ChunkFrame(kind FrameKind, seq uint16, frame []byte) ([][]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("refusing to chunk an empty frame")
	}
	if len(frame) > MaxFrameBytes {
		return nil, fmt.Errorf("frame of %d bytes exceeds max %d", len(frame), MaxFrameBytes)
	}

	count := (len(frame) + MaxChunkPayload - 1) / MaxChunkPayload
	if count > 0xFFFF {
		return nil, fmt.Errorf("frame needs %d chunks, max is %d", count, 0xFFFF)
	}

	packets := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * MaxChunkPayload
		end := start + MaxChunkPayload
		if end > len(frame) {
			end = len(frame)
		}
		packets = append(packets, EncodeChunk(ChunkHeader{
			Version:    ProtocolVersion,
			Kind:       kind,
			Sequence:   seq,
			ChunkIndex: uint16(i),
			ChunkCount: uint16(count),
			FrameSize:  uint32(len(frame)),
		}, frame[start:end]))
	}
	return packets, nil
}

// frameKey identifies a frame being reassembled. Sequence numbers are per
// kind, so the same sequence may be in flight for rgb, depth and info.
type frameKey struct {
	kind FrameKind
	seq  uint16
}

// partialFrame accumulates chunks until a frame is complete.
type partialFrame struct {
	chunks    [][]byte
	received  int
	frameSize uint32
	firstSeen time.Time
}

// Assembler reassembles chunked datagrams into complete frames. Partial
// frames that stop receiving chunks are evicted after the stale timeout, so
// a lost datagram costs one frame rather than leaking memory.
type Assembler struct {
	mu      sync.Mutex
	pending map[frameKey]*partialFrame
	timeout time.Duration
	evicted int64
}

// NewAssembler creates an Assembler. A zero timeout defaults to one second,
// which is generous for frames arriving at tens of hertz.
func NewAssembler(timeout time.Duration) *Assembler {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Assembler{
		pending: make(map[frameKey]*partialFrame),
		timeout: timeout,
	}
}

// Add ingests one parsed chunk. When the chunk completes a frame, the
// reassembled payload is returned with done=true. Chunks may arrive in any
// order; duplicates are ignored.
func (a *Assembler) Add(h ChunkHeader, payload []byte) (data []byte, done bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	a.evictStaleLocked(now)

	key := frameKey{kind: h.Kind, seq: h.Sequence}
	partial, ok := a.pending[key]
	if !ok {
		partial = &partialFrame{
			chunks:    make([][]byte, h.ChunkCount),
			frameSize: h.FrameSize,
			firstSeen: now,
		}
		a.pending[key] = partial
	}

	if int(h.ChunkCount) != len(partial.chunks) || h.FrameSize != partial.frameSize {
		// Header drifted mid-frame; drop the partial and start over.
		delete(a.pending, key)
		return nil, false, fmt.Errorf("inconsistent chunk header for %s frame %d", h.Kind, h.Sequence)
	}

	if partial.chunks[h.ChunkIndex] != nil {
		return nil, false, nil // duplicate chunk
	}
	partial.chunks[h.ChunkIndex] = append([]byte(nil), payload...)
	partial.received++

	if partial.received < len(partial.chunks) {
		return nil, false, nil
	}

	delete(a.pending, key)

	frame := make([]byte, 0, partial.frameSize)
	for _, chunk := range partial.chunks {
		frame = append(frame, chunk...)
	}
	if uint32(len(frame)) != partial.frameSize {
		return nil, false, fmt.Errorf("reassembled %s frame %d is %d bytes, header said %d",
			h.Kind, h.Sequence, len(frame), partial.frameSize)
	}

	return frame, true, nil
}

// evictStaleLocked drops partial frames older than the timeout. Caller holds mu.
func (a *Assembler) evictStaleLocked(now time.Time) {
	for key, partial := range a.pending {
		if now.Sub(partial.firstSeen) > a.timeout {
			delete(a.pending, key)
			a.evicted++
		}
	}
}

// PendingCount returns the number of frames currently being reassembled.
func (a *Assembler) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// EvictedCount returns the number of partial frames dropped as stale.
func (a *Assembler) EvictedCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.evicted
}
