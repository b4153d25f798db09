//go:build !pcap
// +build !pcap

package camera

import (
	"context"
	"fmt"
	"time"
)

// ReplayPCAPFile is a stub implementation when PCAP support is disabled
// Build with -tags=pcap to enable PCAP file reading
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler FrameHandler, stats StatsInterface, forwarder PacketForwarder, staleTimeout time.Duration) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")
}
