//go:build pcap
// +build pcap

package camera

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReplayPCAPFile reads and processes camera chunk datagrams from a PCAP file.
// If forwarder is not nil, packets are forwarded to the configured destination.
// This function is only available when building with the 'pcap' build tag.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler FrameHandler, stats StatsInterface, forwarder PacketForwarder, staleTimeout time.Duration) error {
	// Open PCAP file
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	// Set BPF filter to only capture UDP packets on the camera port
	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	log.Printf("PCAP BPF filter set: %s", filterStr)

	assembler := NewAssembler(staleTimeout)
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	totalFrames := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				// End of PCAP file
				elapsed := time.Since(startTime)
				log.Printf("PCAP file reading complete: %d packets, %d frames in %v", packetCount, totalFrames, elapsed)
				return nil
			}

			packetCount++

			// Log progress periodically
			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}

			// Extract UDP layer
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue // Skip non-UDP packets (shouldn't happen with BPF filter)
			}

			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}

			// Extract payload (camera chunk data)
			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			// Record packet statistics
			if stats != nil {
				stats.AddPacket(len(payload))
			}

			// Forward packet if forwarder is configured
			if forwarder != nil {
				forwarder.ForwardAsync(payload)
			}

			h, chunk, err := ParseChunk(payload)
			if err != nil {
				log.Printf("Error parsing PCAP packet %d: %v", packetCount, err)
				if stats != nil {
					stats.AddDropped()
				}
				continue
			}

			frame, done, err := assembler.Add(h, chunk)
			if err != nil {
				log.Printf("Error assembling PCAP packet %d: %v", packetCount, err)
				if stats != nil {
					stats.AddDropped()
				}
				continue
			}
			if !done {
				continue
			}

			totalFrames++
			if stats != nil {
				stats.AddFrames(1)
			}
			if handler != nil {
				handler.HandleFrame(h.Kind, h.Sequence, frame)
			}

			if totalFrames%100 == 0 {
				log.Printf("PCAP assembled frames: packet=%d, total_frames=%d", packetCount, totalFrames)
			}
		}
	}
}
