package camera

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PacketStats tracks packet statistics with thread-safe operations
type PacketStats struct {
	mu           sync.Mutex
	packetCount  int64
	byteCount    int64
	droppedCount int64
	frameCount   int64
	lastReset    time.Time
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped increments dropped packet count
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddFrames increments assembled frame count
func (ps *PacketStats) AddFrames(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frameCount += int64(count)
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() (packets int64, bytes int64, dropped int64, frames int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	dropped = ps.droppedCount
	frames = ps.frameCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.droppedCount = 0
	ps.frameCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics for the reporting interval
func (ps *PacketStats) LogStats() {
	packets, bytes, dropped, frames, duration := ps.GetAndReset()
	if packets > 0 || dropped > 0 {
		packetsPerSec := float64(packets) / duration.Seconds()
		mbPerSec := float64(bytes) / duration.Seconds() / (1024 * 1024)
		framesPerSec := float64(frames) / duration.Seconds()

		logMsg := fmt.Sprintf("Camera stats (/sec): %.2f MB, %.1f packets, %.1f frames",
			mbPerSec, packetsPerSec, framesPerSec)
		if dropped > 0 {
			logMsg += fmt.Sprintf(", %d dropped", dropped)
		}

		log.Print(logMsg)
	}
}
