package baselink

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/strandbotics/homebase/internal/geom"
)

// drain keeps the simulated base's pipe flowing so telemetry writes never
// block the tick loop.
func drain(b *MockBase) {
	go io.Copy(io.Discard, b)
}

// collectLines scans telemetry lines from the base into a buffered channel
// until the base is closed.
func collectLines(b *MockBase) <-chan string {
	lines := make(chan string, 1000)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(b)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func TestMockBase_EnableAndMove(t *testing.T) {
	base := NewMockBase(100)
	defer base.Close()
	drain(base)

	if base.Enabled() {
		t.Error("Base should start with motors disabled")
	}

	if _, err := base.Write([]byte("E1\nV 0.2 0.0\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if !base.Enabled() {
		t.Error("Expected motors enabled after E1")
	}

	time.Sleep(200 * time.Millisecond)

	pose := base.Pose()
	if pose.X <= 0.01 {
		t.Errorf("Expected base to drive forward, X = %v", pose.X)
	}
	if math.Abs(pose.Y) > 1e-9 {
		t.Errorf("Straight drive should not move sideways, Y = %v", pose.Y)
	}

	// Disabling stops the base where it is.
	if _, err := base.Write([]byte("E0\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	stopped := base.Pose()
	time.Sleep(100 * time.Millisecond)
	if got := base.Pose(); got != stopped {
		t.Errorf("Pose moved after disable: %+v != %+v", got, stopped)
	}
}

func TestMockBase_Watchdog(t *testing.T) {
	base := NewMockBase(100)
	defer base.Close()
	drain(base)

	// Shorten the firmware watchdog to keep the test fast.
	base.mu.Lock()
	base.watchdog = 100 * time.Millisecond
	base.mu.Unlock()

	if _, err := base.Write([]byte("E1\nV 0.2 0.0\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	// Well past the watchdog with no further velocity commands.
	time.Sleep(250 * time.Millisecond)

	p1 := base.Pose()
	if p1.X <= 0 {
		t.Errorf("Expected some forward motion before watchdog, X = %v", p1.X)
	}

	time.Sleep(100 * time.Millisecond)
	p2 := base.Pose()
	if p1 != p2 {
		t.Errorf("Base kept moving after watchdog expired: %+v != %+v", p1, p2)
	}
}

func TestMockBase_CommandResponses(t *testing.T) {
	base := NewMockBase(100)
	defer base.Close()
	lines := collectLines(base)

	if _, err := base.Write([]byte("E1\nS\nbogus\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	var sawAck, sawStatus, sawErr bool
	deadline := time.After(2 * time.Second)
	for !(sawAck && sawStatus && sawErr) {
		select {
		case line := <-lines:
			switch {
			case line == "ACK E1":
				sawAck = true
			case strings.Contains(line, `"firmware":"mock-1.0"`):
				sawStatus = true
			case line == "ERR unknown command":
				sawErr = true
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for responses: ack=%v status=%v err=%v",
				sawAck, sawStatus, sawErr)
		}
	}
}

func TestMockBase_VelocityErrors(t *testing.T) {
	base := NewMockBase(100)
	defer base.Close()
	lines := collectLines(base)

	if _, err := base.Write([]byte("V 1.0\nV a b\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	var sawArity, sawNumber bool
	deadline := time.After(2 * time.Second)
	for !(sawArity && sawNumber) {
		select {
		case line := <-lines:
			switch line {
			case "ERR V: bad arity":
				sawArity = true
			case "ERR V: bad number":
				sawNumber = true
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for errors: arity=%v number=%v", sawArity, sawNumber)
		}
	}
}

func TestMockBase_RateAndClock(t *testing.T) {
	base := NewMockBase(100)
	defer base.Close()
	lines := collectLines(base)

	if _, err := base.Write([]byte("R50\nR999\nC=1756100000\nZ\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if got := base.tickPeriod(); got != 20*time.Millisecond {
		t.Errorf("tickPeriod after R50 = %v, want 20ms", got)
	}

	want := map[string]bool{
		"ACK R":           false,
		"ERR R: bad rate": false,
		"ACK C":           false,
		"ACK Z":           false,
	}
	seen := 0
	deadline := time.After(2 * time.Second)
	for seen < len(want) {
		select {
		case line := <-lines:
			if done, ok := want[line]; ok && !done {
				want[line] = true
				seen++
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for responses, got %d of %d: %v", seen, len(want), want)
		}
	}
}

func TestMockBase_ZeroOdometry(t *testing.T) {
	base := NewMockBase(100)
	defer base.Close()
	drain(base)

	if _, err := base.Write([]byte("E1\nV 0.2 0.0\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if base.Pose().X <= 0 {
		t.Fatal("Expected forward motion before zeroing")
	}

	// Stop, then zero: the pose must come back to the origin and stay there.
	if _, err := base.Write([]byte("E0\nZ\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := base.Pose(); got != (geom.Pose2{}) {
		t.Errorf("Pose after Z = %+v, want origin", got)
	}
}

func TestMockBase_CloseIdempotent(t *testing.T) {
	base := NewMockBase(20)

	if err := base.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := base.Close(); err != nil {
		t.Errorf("Second Close returned error: %v", err)
	}

	if _, err := base.Read(make([]byte, 10)); err == nil {
		t.Error("Expected error reading from closed base")
	}
}

func TestNewMockMux(t *testing.T) {
	mux := NewMockMux()
	if mux == nil {
		t.Fatal("NewMockMux returned nil")
	}

	id, ch := mux.Subscribe()
	if id == "" {
		t.Error("Subscribe returned empty ID")
	}
	if ch == nil {
		t.Error("Subscribe returned nil channel")
	}

	if err := mux.SendCommand("S"); err != nil {
		t.Errorf("SendCommand returned error: %v", err)
	}

	if err := mux.Initialize(); err != nil {
		t.Errorf("Initialize returned error: %v", err)
	}

	mux.Unsubscribe(id)

	if err := mux.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}

func TestMockMux_EndToEnd(t *testing.T) {
	mux := NewMockMux()
	defer mux.Close()

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	// Telemetry repeats every tick; status and ACK lines only repeat if we
	// keep requesting, which also covers lines lost to the non-blocking
	// subscriber sends.
	var sawTelemetry, sawStatus, sawAck bool
	deadline := time.After(3 * time.Second)
	for !(sawTelemetry && sawStatus && sawAck) {
		select {
		case line := <-ch:
			switch ClassifyLine(line) {
			case EventTypeTelemetry:
				sawTelemetry = true
				if !sawStatus {
					mux.RequestStatus()
				}
				if !sawAck {
					mux.ZeroOdometry()
				}
			case EventTypeStatus:
				sawStatus = true
			case EventTypeAck:
				sawAck = true
			}
		case <-deadline:
			t.Fatalf("Timed out: telemetry=%v status=%v ack=%v", sawTelemetry, sawStatus, sawAck)
		}
	}
}

func TestTestablePort_ReadWrite(t *testing.T) {
	port := NewTestablePort()

	testData := []byte("test data")
	port.AddReadData(testData)

	buf := make([]byte, 100)
	n, err := port.Read(buf)
	if err != nil {
		t.Errorf("Read returned error: %v", err)
	}
	if string(buf[:n]) != string(testData) {
		t.Errorf("Read returned %q, expected %q", string(buf[:n]), string(testData))
	}
	if port.ReadCalls != 1 {
		t.Errorf("Expected 1 read call, got %d", port.ReadCalls)
	}

	writeData := []byte("write data")
	n, err = port.Write(writeData)
	if err != nil {
		t.Errorf("Write returned error: %v", err)
	}
	if n != len(writeData) {
		t.Errorf("Write returned %d, expected %d", n, len(writeData))
	}
	if port.WriteCalls != 1 {
		t.Errorf("Expected 1 write call, got %d", port.WriteCalls)
	}

	if string(port.GetWrittenData()) != string(writeData) {
		t.Errorf("Written data = %q, expected %q", string(port.GetWrittenData()), string(writeData))
	}
}

func TestTestablePort_Errors(t *testing.T) {
	port := NewTestablePort()

	// Read error is one-shot
	port.ReadError = errors.New("read error")
	_, err := port.Read(make([]byte, 10))
	if err == nil || err.Error() != "read error" {
		t.Errorf("Expected 'read error', got: %v", err)
	}
	port.AddReadData([]byte("x"))
	_, err = port.Read(make([]byte, 10))
	if err != nil {
		t.Errorf("Expected no error after error cleared, got: %v", err)
	}

	// Write error is one-shot
	port.WriteError = errors.New("write error")
	_, err = port.Write([]byte("test"))
	if err == nil || err.Error() != "write error" {
		t.Errorf("Expected 'write error', got: %v", err)
	}

	port.CloseError = errors.New("close error")
	err = port.Close()
	if err == nil || err.Error() != "close error" {
		t.Errorf("Expected 'close error', got: %v", err)
	}
}

func TestTestablePort_Closed(t *testing.T) {
	port := NewTestablePort()

	port.Close()

	if !port.Closed {
		t.Error("Expected port to be closed")
	}

	if _, err := port.Read(make([]byte, 10)); err == nil {
		t.Error("Expected error reading from closed port")
	}

	if _, err := port.Write([]byte("test")); err == nil {
		t.Error("Expected error writing to closed port")
	}
}

func TestTestablePort_BlockReads(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := port.Read(buf)
		if err != nil {
			got <- "err: " + err.Error()
			return
		}
		got <- string(buf[:n])
	}()

	// Reader should be blocked until data arrives.
	select {
	case v := <-got:
		t.Fatalf("Read returned %q before data was added", v)
	case <-time.After(50 * time.Millisecond):
	}

	port.AddReadData([]byte("wake"))
	select {
	case v := <-got:
		if v != "wake" {
			t.Errorf("Read returned %q, want %q", v, "wake")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Read did not wake after AddReadData")
	}

	// A blocked reader must also be released by Close.
	errCh := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 64))
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	port.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("Expected error from Read after Close")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestTestablePort_WrittenLines(t *testing.T) {
	port := NewTestablePort()

	port.Write([]byte("E0\n"))
	port.Write([]byte("Z\nR20\n"))
	port.Write([]byte("S\n"))

	want := []string{"E0", "Z", "R20", "S"}
	got := port.WrittenLines()
	if len(got) != len(want) {
		t.Fatalf("WrittenLines() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("WrittenLines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMockPortFactory(t *testing.T) {
	port := NewTestablePort()
	factory := &MockPortFactory{Port: port}

	mode := DefaultPortMode()

	result, err := factory.Open("/dev/ttyUSB0", mode)
	if err != nil {
		t.Errorf("Open returned error: %v", err)
	}
	if result != port {
		t.Error("Expected returned port to match configured port")
	}

	if len(factory.OpenCalls) != 1 {
		t.Fatalf("Expected 1 open call, got %d", len(factory.OpenCalls))
	}
	if factory.OpenCalls[0].Path != "/dev/ttyUSB0" {
		t.Errorf("Expected path '/dev/ttyUSB0', got '%s'", factory.OpenCalls[0].Path)
	}
	if factory.OpenCalls[0].Mode.BaudRate != 115200 {
		t.Errorf("Expected baud rate 115200, got %d", factory.OpenCalls[0].Mode.BaudRate)
	}
}

func TestMockPortFactory_Error(t *testing.T) {
	factory := &MockPortFactory{Error: errors.New("open error")}

	_, err := factory.Open("/dev/ttyUSB0", nil)
	if err == nil || err.Error() != "open error" {
		t.Errorf("Expected 'open error', got: %v", err)
	}
}

func TestDefaultPortMode(t *testing.T) {
	mode := DefaultPortMode()

	if mode.BaudRate != 115200 {
		t.Errorf("Expected baud rate 115200, got %d", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("Expected data bits 8, got %d", mode.DataBits)
	}
	if mode.Parity != NoParity {
		t.Errorf("Expected NoParity, got %v", mode.Parity)
	}
	if mode.StopBits != 1 {
		t.Errorf("Expected 1 stop bit, got %d", mode.StopBits)
	}
}
