package telemetry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/strandbotics/homebase/internal/baselink"
)

func TestEncodeDecodeState(t *testing.T) {
	want := baselink.StateFrame{
		T: 1756100000.5,
		Base: baselink.BaseState{
			X:     1.25,
			Y:     -0.5,
			Theta: 0.75,
			V:     0.2,
			W:     -0.125,
		},
		Q:       []float64{0, 0.25, 0.5, 0.75, 1, 1.25},
		DQ:      []float64{0, 0, 0, 0, 0, 0},
		Gripper: 0.5,
	}

	packet, err := EncodeState("strand-01", want)
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}

	robot, got, err := DecodeState(packet)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	if robot != "strand-01" {
		t.Errorf("robot = %q, want %q", robot, "strand-01")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeState_Errors(t *testing.T) {
	if _, _, err := DecodeState([]byte("not a protobuf packet")); err == nil {
		t.Error("expected error for junk packet")
	}

	status, err := structpb.NewStruct(map[string]any{
		"robot": "strand-01",
		"event": "status",
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	packet, err := proto.Marshal(status)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, _, err := DecodeState(packet); err == nil {
		t.Error("expected error for non-state event")
	}

	missing, err := structpb.NewStruct(map[string]any{
		"robot": "strand-01",
		"event": EventState,
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	packet, err = proto.Marshal(missing)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, _, err := DecodeState(packet); err == nil {
		t.Error("expected error for missing state payload")
	}
}

func TestRelay_ForwardsTelemetry(t *testing.T) {
	recv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer recv.Close()
	port := recv.LocalAddr().(*net.UDPAddr).Port

	mux := baselink.NewMockMux()
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go mux.Monitor(ctx)

	forwarder, err := NewForwarder("127.0.0.1", port, nil, time.Hour)
	if err != nil {
		cancel()
		t.Fatalf("NewForwarder: %v", err)
	}
	forwarder.Start(ctx)

	relayExited := make(chan struct{})
	var relayErr error
	go func() {
		relayErr = Relay(ctx, mux, "strand-01", forwarder)
		close(relayExited)
	}()

	// Stop the relay before closing the forwarder so nothing sends on the
	// closed forwarding channel.
	defer func() {
		cancel()
		<-relayExited
		forwarder.Close()
	}()

	recv.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := recv.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("no telemetry arrived: %v", err)
	}

	robot, frame, err := DecodeState(buf[:n])
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	if robot != "strand-01" {
		t.Errorf("robot = %q, want %q", robot, "strand-01")
	}
	if frame.T == 0 {
		t.Error("frame timestamp is zero")
	}
	if len(frame.Q) != 6 {
		t.Errorf("got %d joint positions, want 6", len(frame.Q))
	}

	cancel()
	<-relayExited
	if relayErr != context.Canceled {
		t.Errorf("Relay returned %v, want context.Canceled", relayErr)
	}
}
