package baselink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/strandbotics/homebase/internal/geom"
)

// MockBase implements Porter with a kinematic simulation of the drive base.
// Written commands are parsed with the controller grammar and telemetry lines
// are generated at the telemetry rate, so dev mode runs the full control loop
// against a base that actually moves.
type MockBase struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu       sync.Mutex
	pose     geom.Pose2
	v, w     float64
	enabled  bool
	gripper  float64
	q        []float64
	dq       []float64
	lastCmd  time.Time
	period   time.Duration
	watchdog time.Duration
	pending  []string // ACK and event lines awaiting the next tick

	done      chan struct{}
	closeOnce sync.Once
}

// NewMockBase creates a simulated base emitting telemetry at the given rate.
func NewMockBase(telemetryHz float64) *MockBase {
	if telemetryHz <= 0 {
		telemetryHz = 20
	}
	r, w := io.Pipe()
	b := &MockBase{
		reader:   r,
		writer:   w,
		q:        make([]float64, 6),
		dq:       make([]float64, 6),
		period:   time.Duration(float64(time.Second) / telemetryHz),
		watchdog: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// run integrates the simulated state and writes telemetry lines into the pipe.
func (b *MockBase) run() {
	last := time.Now()
	for {
		select {
		case <-b.done:
			return
		case now := <-time.After(b.tickPeriod()):
			dt := now.Sub(last).Seconds()
			last = now
			lines := b.step(now, dt)
			for _, line := range lines {
				if _, err := b.writer.Write([]byte(line + "\n")); err != nil {
					return
				}
			}
		}
	}
}

func (b *MockBase) tickPeriod() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.period
}

// step advances the simulation by dt and returns the lines to emit.
func (b *MockBase) step(now time.Time, dt float64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Firmware safety: stop if no velocity command within the watchdog.
	if b.enabled && now.Sub(b.lastCmd) > b.watchdog {
		b.v, b.w = 0, 0
	}
	if b.enabled {
		b.pose = b.pose.Integrate(b.v, b.w, dt)
	}

	frame := StateFrame{
		T: float64(now.UnixNano()) / 1e9,
		Base: BaseState{
			X: b.pose.X, Y: b.pose.Y, Theta: b.pose.Theta,
			V: b.v, W: b.w,
		},
		Q:       append([]float64(nil), b.q...),
		DQ:      append([]float64(nil), b.dq...),
		Gripper: b.gripper,
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil
	}

	lines := append([]string{}, b.pending...)
	b.pending = nil
	return append(lines, string(payload))
}

// Read returns simulated telemetry lines.
func (b *MockBase) Read(p []byte) (int, error) {
	return b.reader.Read(p)
}

// Write parses incoming command lines with the controller grammar and applies
// them to the simulated state.
func (b *MockBase) Write(p []byte) (int, error) {
	for _, raw := range bytes.Split(p, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		b.apply(line)
	}
	return len(p), nil
}

func (b *MockBase) apply(command string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case strings.HasPrefix(command, "V "):
		fields := strings.Fields(command)
		if len(fields) != 3 {
			b.pending = append(b.pending, "ERR V: bad arity")
			return
		}
		v, errV := strconv.ParseFloat(fields[1], 64)
		w, errW := strconv.ParseFloat(fields[2], 64)
		if errV != nil || errW != nil {
			b.pending = append(b.pending, "ERR V: bad number")
			return
		}
		b.v, b.w = v, w
		b.lastCmd = time.Now()
	case command == "E1":
		b.enabled = true
		b.lastCmd = time.Now()
		b.pending = append(b.pending, "ACK E1")
	case command == "E0":
		b.enabled = false
		b.v, b.w = 0, 0
		b.pending = append(b.pending, "ACK E0")
	case command == "Z":
		b.pose = geom.Pose2{}
		b.pending = append(b.pending, "ACK Z")
	case command == "S":
		b.pending = append(b.pending, fmt.Sprintf(
			`{"event":"status","enabled":%t,"firmware":"mock-1.0"}`, b.enabled))
	case strings.HasPrefix(command, "R"):
		hz, err := strconv.Atoi(command[1:])
		if err != nil || hz < 1 || hz > 200 {
			b.pending = append(b.pending, "ERR R: bad rate")
			return
		}
		b.period = time.Duration(float64(time.Second) / float64(hz))
		b.pending = append(b.pending, "ACK R")
	case strings.HasPrefix(command, "C="):
		b.pending = append(b.pending, "ACK C")
	default:
		b.pending = append(b.pending, "ERR unknown command")
	}
}

// Pose returns the current simulated pose, for test assertions.
func (b *MockBase) Pose() geom.Pose2 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pose
}

// Enabled reports whether the simulated motors are enabled.
func (b *MockBase) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *MockBase) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.writer.Close()
		b.reader.Close()
	})
	return nil
}

// NewMockMux creates a Mux instance backed by a simulated base.
func NewMockMux() *Mux[*MockBase] {
	return NewMux(NewMockBase(20))
}

// TestablePort implements Porter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes and errors.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	// readCond is used to signal blocked readers
	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	tp := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tp.readCond = sync.NewCond(&tp.mu)
	return tp
}

// Read reads from the read buffer, optionally blocking until data arrives.
func (t *TestablePort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.BlockReads && t.ReadBuffer.Len() == 0 {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, errors.New("serial port closed")
		}
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestablePort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast() // Wake up any blocked readers

	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal() // Wake up a blocked reader
}

// GetWrittenData returns all data written to the port.
func (t *TestablePort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.WriteBuffer.Bytes()
}

// WrittenLines returns the written commands split into lines, for asserting
// command sequences.
func (t *TestablePort) WrittenLines() []string {
	var lines []string
	for _, line := range strings.Split(string(t.GetWrittenData()), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// MockPortFactory implements PortFactory for testing.
type MockPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port Porter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Mode *PortMode
}

// Open returns the configured port or error.
func (f *MockPortFactory) Open(path string, mode *PortMode) (Porter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Mode: mode})

	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}
