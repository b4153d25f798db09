package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/strandbotics/homebase/internal/baselink"
)

// EventState names the state-frame event in collector envelopes.
const EventState = "state"

// EncodeState wraps a state frame in a collector envelope and serializes it.
// The envelope is a protobuf Struct with the robot name, the event type and
// the frame fields, so the collector can ingest it without this schema.
func EncodeState(robot string, frame baselink.StateFrame) ([]byte, error) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state frame: %w", err)
	}
	state := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("failed to build state struct: %w", err)
	}

	envelope, err := structpb.NewStruct(map[string]any{
		"robot": robot,
		"event": EventState,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	envelope.Fields["state"] = structpb.NewStructValue(state)

	return proto.Marshal(envelope)
}

// DecodeState unpacks a collector envelope produced by EncodeState.
func DecodeState(packet []byte) (string, baselink.StateFrame, error) {
	envelope := &structpb.Struct{}
	if err := proto.Unmarshal(packet, envelope); err != nil {
		return "", baselink.StateFrame{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	fields := envelope.GetFields()
	robot := fields["robot"].GetStringValue()
	if event := fields["event"].GetStringValue(); event != EventState {
		return robot, baselink.StateFrame{}, fmt.Errorf("envelope event %q is not a state event", event)
	}
	state := fields["state"].GetStructValue()
	if state == nil {
		return robot, baselink.StateFrame{}, fmt.Errorf("envelope missing state payload")
	}

	raw, err := protojson.Marshal(state)
	if err != nil {
		return robot, baselink.StateFrame{}, fmt.Errorf("failed to re-encode state payload: %w", err)
	}
	frame, err := baselink.ParseStateFrame(string(raw))
	if err != nil {
		return robot, baselink.StateFrame{}, err
	}
	return robot, *frame, nil
}

// Relay subscribes to base telemetry and ships each state frame upstream
// until the context is cancelled or the subscription channel closes.
func Relay(ctx context.Context, mux baselink.MuxInterface, robot string, forwarder *Forwarder) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	log.Printf("Telemetry relay started for robot %s", robot)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if baselink.ClassifyLine(line) != baselink.EventTypeTelemetry {
				continue
			}
			frame, err := baselink.ParseStateFrame(line)
			if err != nil {
				log.Printf("Telemetry relay skipping bad frame: %v", err)
				continue
			}
			packet, err := EncodeState(robot, *frame)
			if err != nil {
				log.Printf("Telemetry relay failed to encode frame: %v", err)
				continue
			}
			forwarder.ForwardAsync(packet)
		}
	}
}
