package camera

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

// StatsInterface provides packet statistics management
type StatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddFrames(count int)
	LogStats()
}

// FrameHandler receives reassembled camera frames. Handlers must not retain
// the frame slice past the call; copy it if needed.
type FrameHandler interface {
	HandleFrame(kind FrameKind, seq uint16, frame []byte)
}

// PacketForwarder mirrors raw datagrams to a secondary destination
type PacketForwarder interface {
	Start(ctx context.Context)
	ForwardAsync(packet []byte)
}

// UDPListener handles receiving camera chunk datagrams from UDP, reassembling
// them into frames and handing complete frames to the configured handler
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       StatsInterface
	forwarder   PacketForwarder
	assembler   *Assembler
	handler     FrameHandler
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address      string
	RcvBuf       int
	LogInterval  time.Duration
	Stats        StatsInterface
	Forwarder    PacketForwarder
	Handler      FrameHandler
	StaleTimeout time.Duration
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the packet handling and logging paths.
	var stats StatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	// Default a sensible log interval if not provided
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		forwarder:   config.Forwarder,
		assembler:   NewAssembler(config.StaleTimeout),
		handler:     config.Handler,
	}
}

// noopStats is a StatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) AddFrames(count int) {}
func (n *noopStats) LogStats()           {}

// Start begins listening for UDP packets and processing them
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	// Set receive buffer size
	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}

	log.Printf("Camera listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	// Start forwarder if configured
	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	// Start statistics logging
	go l.startStatsLogging(ctx)

	// Chunk datagrams are at most MaxDatagramSize bytes + some margin
	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			log.Print("Camera listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			// Handle the received packet
			packet := buffer[:n]
			if err := l.handlePacket(packet); err != nil {
				log.Printf("Error handling packet from %v: %v", addr, err)
			}
		}
	}
}

// startStatsLogging starts a goroutine that periodically logs packet statistics
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a long
	// silence on first-run. Then continue on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket processes a single received UDP packet
func (l *UDPListener) handlePacket(packet []byte) error {
	// Track packet statistics
	l.stats.AddPacket(len(packet))

	// Forward packet asynchronously if forwarding is enabled
	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}

	h, payload, err := ParseChunk(packet)
	if err != nil {
		l.stats.AddDropped()
		return fmt.Errorf("rejecting chunk: %w", err)
	}

	frame, done, err := l.assembler.Add(h, payload)
	if err != nil {
		l.stats.AddDropped()
		return err
	}
	if !done {
		return nil
	}

	l.stats.AddFrames(1)
	if l.handler != nil {
		l.handler.HandleFrame(h.Kind, h.Sequence, frame)
	}
	return nil
}

// Close closes the UDP listener and releases resources
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
