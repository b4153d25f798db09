package camera

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeParseChunkRoundTrip(t *testing.T) {
	want := ChunkHeader{
		Version:    ProtocolVersion,
		Kind:       KindDepth,
		Sequence:   4242,
		ChunkIndex: 3,
		ChunkCount: 7,
		FrameSize:  90210,
	}
	payload := []byte("not quite a png")

	packet := EncodeChunk(want, payload)
	if len(packet) != HeaderSize+len(payload) {
		t.Fatalf("packet length = %d, want %d", len(packet), HeaderSize+len(payload))
	}

	got, gotPayload, err := ParseChunk(packet)
	if err != nil {
		t.Fatalf("ParseChunk failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("payload = %q, want %q", gotPayload, payload)
	}
}

func TestParseChunkErrors(t *testing.T) {
	valid := EncodeChunk(ChunkHeader{
		Version:    ProtocolVersion,
		Kind:       KindRGB,
		Sequence:   1,
		ChunkIndex: 0,
		ChunkCount: 1,
		FrameSize:  16,
	}, bytes.Repeat([]byte{0xAB}, 16))

	mutate := func(f func(p []byte)) []byte {
		p := append([]byte(nil), valid...)
		f(p)
		return p
	}

	tests := []struct {
		name   string
		packet []byte
	}{
		{"too short", valid[:HeaderSize-1]},
		{"bad magic", mutate(func(p []byte) { p[0] = 'X' })},
		{"bad version", mutate(func(p []byte) { p[4] = 9 })},
		{"unknown kind", mutate(func(p []byte) { p[5] = 200 })},
		{"zero chunk count", mutate(func(p []byte) { p[10], p[11] = 0, 0 })},
		{"index out of range", mutate(func(p []byte) { p[8] = 5 })},
		{"zero frame size", mutate(func(p []byte) { p[12], p[13], p[14], p[15] = 0, 0, 0, 0 })},
		{"oversized frame", mutate(func(p []byte) { p[12], p[13], p[14], p[15] = 0xFF, 0xFF, 0xFF, 0xFF })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseChunk(tt.packet); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestChunkFrameSingleChunk(t *testing.T) {
	frame := []byte("tiny frame")
	packets, err := ChunkFrame(KindInfo, 7, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	h, payload, err := ParseChunk(packets[0])
	if err != nil {
		t.Fatalf("ParseChunk failed: %v", err)
	}
	if h.Kind != KindInfo || h.Sequence != 7 || h.ChunkIndex != 0 || h.ChunkCount != 1 {
		t.Errorf("unexpected header %+v", h)
	}
	if h.FrameSize != uint32(len(frame)) {
		t.Errorf("frame size = %d, want %d", h.FrameSize, len(frame))
	}
	if !bytes.Equal(payload, frame) {
		t.Errorf("payload = %q, want %q", payload, frame)
	}
}

func TestChunkFrameMultipleChunks(t *testing.T) {
	frame := make([]byte, MaxChunkPayload*2+100)
	for i := range frame {
		frame[i] = byte(i % 251)
	}

	packets, err := ChunkFrame(KindRGB, 99, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}

	var rebuilt []byte
	for i, p := range packets {
		if len(p) > MaxDatagramSize {
			t.Errorf("packet %d is %d bytes, exceeds %d", i, len(p), MaxDatagramSize)
		}
		h, payload, err := ParseChunk(p)
		if err != nil {
			t.Fatalf("ParseChunk packet %d: %v", i, err)
		}
		if int(h.ChunkIndex) != i {
			t.Errorf("packet %d has chunk index %d", i, h.ChunkIndex)
		}
		if int(h.ChunkCount) != len(packets) {
			t.Errorf("packet %d has chunk count %d, want %d", i, h.ChunkCount, len(packets))
		}
		rebuilt = append(rebuilt, payload...)
	}
	if !bytes.Equal(rebuilt, frame) {
		t.Error("concatenated payloads differ from original frame")
	}
}

func TestChunkFrameRejectsEmptyAndOversized(t *testing.T) {
	if _, err := ChunkFrame(KindRGB, 0, nil); err == nil {
		t.Error("expected error for empty frame")
	}
	big := make([]byte, MaxFrameBytes+1)
	if _, err := ChunkFrame(KindRGB, 0, big); err == nil {
		t.Error("expected error for oversized frame")
	}
}

// addAll feeds packets to the assembler and returns the frame completed by
// the final done chunk, if any.
func addAll(t *testing.T, a *Assembler, packets [][]byte) []byte {
	t.Helper()
	var frame []byte
	for i, p := range packets {
		h, payload, err := ParseChunk(p)
		if err != nil {
			t.Fatalf("ParseChunk packet %d: %v", i, err)
		}
		data, done, err := a.Add(h, payload)
		if err != nil {
			t.Fatalf("Add packet %d: %v", i, err)
		}
		if done {
			frame = data
		}
	}
	return frame
}

func TestAssemblerInOrder(t *testing.T) {
	frame := make([]byte, MaxChunkPayload+512)
	for i := range frame {
		frame[i] = byte(i % 251)
	}
	packets, err := ChunkFrame(KindDepth, 12, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}

	a := NewAssembler(0)
	got := addAll(t, a, packets)
	if !bytes.Equal(got, frame) {
		t.Error("reassembled frame differs from original")
	}
	if a.PendingCount() != 0 {
		t.Errorf("pending count = %d, want 0", a.PendingCount())
	}
}

func TestAssemblerOutOfOrder(t *testing.T) {
	frame := make([]byte, MaxChunkPayload*3+7)
	for i := range frame {
		frame[i] = byte(i % 253)
	}
	packets, err := ChunkFrame(KindRGB, 31, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}

	reversed := make([][]byte, len(packets))
	for i, p := range packets {
		reversed[len(packets)-1-i] = p
	}

	a := NewAssembler(0)
	got := addAll(t, a, reversed)
	if !bytes.Equal(got, frame) {
		t.Error("reassembled frame differs from original")
	}
}

func TestAssemblerIgnoresDuplicates(t *testing.T) {
	frame := make([]byte, MaxChunkPayload*2)
	for i := range frame {
		frame[i] = byte(i % 247)
	}
	packets, err := ChunkFrame(KindRGB, 3, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}

	a := NewAssembler(0)
	h0, p0, err := ParseChunk(packets[0])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, done, err := a.Add(h0, p0); done || err != nil {
			t.Fatalf("duplicate add %d: done=%t err=%v", i, done, err)
		}
	}

	h1, p1, err := ParseChunk(packets[1])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	got, done, err := a.Add(h1, p1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !done {
		t.Fatal("frame did not complete after all chunks arrived")
	}
	if !bytes.Equal(got, frame) {
		t.Error("reassembled frame differs from original")
	}
}

func TestAssemblerInterleavedFrames(t *testing.T) {
	rgb := bytes.Repeat([]byte{1}, MaxChunkPayload+10)
	depth := bytes.Repeat([]byte{2}, MaxChunkPayload+20)

	rgbPackets, err := ChunkFrame(KindRGB, 5, rgb)
	if err != nil {
		t.Fatalf("ChunkFrame rgb: %v", err)
	}
	depthPackets, err := ChunkFrame(KindDepth, 5, depth)
	if err != nil {
		t.Fatalf("ChunkFrame depth: %v", err)
	}

	a := NewAssembler(0)
	var gotRGB, gotDepth []byte
	order := [][]byte{rgbPackets[0], depthPackets[0], rgbPackets[1], depthPackets[1]}
	for i, p := range order {
		h, payload, err := ParseChunk(p)
		if err != nil {
			t.Fatalf("ParseChunk packet %d: %v", i, err)
		}
		data, done, err := a.Add(h, payload)
		if err != nil {
			t.Fatalf("Add packet %d: %v", i, err)
		}
		if done {
			switch h.Kind {
			case KindRGB:
				gotRGB = data
			case KindDepth:
				gotDepth = data
			}
		}
	}

	if !bytes.Equal(gotRGB, rgb) {
		t.Error("rgb frame differs from original")
	}
	if !bytes.Equal(gotDepth, depth) {
		t.Error("depth frame differs from original")
	}
}

func TestAssemblerEvictsStaleFrames(t *testing.T) {
	frame := make([]byte, MaxChunkPayload*2)
	packets, err := ChunkFrame(KindRGB, 1, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}

	a := NewAssembler(50 * time.Millisecond)
	h, payload, err := ParseChunk(packets[0])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if _, done, err := a.Add(h, payload); done || err != nil {
		t.Fatalf("first chunk: done=%t err=%v", done, err)
	}
	if got := a.PendingCount(); got != 1 {
		t.Fatalf("pending count = %d, want 1", got)
	}

	time.Sleep(150 * time.Millisecond)

	// Any later add sweeps out the stale partial.
	other, err := ChunkFrame(KindInfo, 2, []byte(`{"t":1}`))
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}
	oh, op, err := ParseChunk(other[0])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if _, _, err := a.Add(oh, op); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if got := a.PendingCount(); got != 0 {
		t.Errorf("pending count after eviction = %d, want 0", got)
	}
	if got := a.EvictedCount(); got != 1 {
		t.Errorf("evicted count = %d, want 1", got)
	}

	// A late chunk of the evicted frame starts a fresh partial rather than
	// completing the old one.
	h2, p2, err := ParseChunk(packets[1])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if _, done, err := a.Add(h2, p2); done || err != nil {
		t.Errorf("late chunk: done=%t err=%v", done, err)
	}
}

func TestAssemblerRejectsInconsistentHeader(t *testing.T) {
	frame := make([]byte, MaxChunkPayload*2)
	packets, err := ChunkFrame(KindRGB, 8, frame)
	if err != nil {
		t.Fatalf("ChunkFrame failed: %v", err)
	}

	a := NewAssembler(0)
	h, payload, err := ParseChunk(packets[0])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if _, _, err := a.Add(h, payload); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h2, payload2, err := ParseChunk(packets[1])
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	h2.ChunkCount = 3
	if _, _, err := a.Add(h2, payload2); err == nil {
		t.Error("expected error for inconsistent chunk count")
	}
	if got := a.PendingCount(); got != 0 {
		t.Errorf("pending count = %d, want 0 after dropped partial", got)
	}
}

func TestFrameKindString(t *testing.T) {
	tests := []struct {
		kind FrameKind
		want string
	}{
		{KindRGB, "rgb"},
		{KindDepth, "depth"},
		{KindInfo, "info"},
		{FrameKind(9), "unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("FrameKind(%d).String() = %q, want %q", uint8(tt.kind), got, tt.want)
		}
	}
}
