package protocol

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec turns frames into transport payloads and back.
type Codec interface {
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
	// Binary reports whether encoded payloads must travel as binary frames.
	Binary() bool
	// Name is the value that selects the codec in CodecByName.
	Name() string
}

// CodecByName returns the codec selected by a connection. The empty name
// selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto", "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", name)
	}
}

// JSONCodec encodes frames as {"event": ..., "data": ...} documents.
type JSONCodec struct{}

func (JSONCodec) Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", ErrUnknownEvent)
	}
	return f, nil
}

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Name() string { return "json" }

// ProtoCodec encodes frames as a protobuf google.protobuf.Struct carrying the
// same two fields as the JSON form.
type ProtoCodec struct{}

func (ProtoCodec) Encode(f Frame) ([]byte, error) {
	var data any
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to encode frame: %w", err)
		}
	}
	pbFrame, err := structpb.NewStruct(map[string]any{
		"event": f.Event.String(),
		"data":  data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	encoded, err := proto.Marshal(pbFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return encoded, nil
}

func (ProtoCodec) Decode(data []byte) (Frame, error) {
	pbFrame := &structpb.Struct{}
	if err := proto.Unmarshal(data, pbFrame); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	fields := pbFrame.AsMap()
	event, _ := fields["event"].(string)
	if event == "" {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", ErrUnknownEvent)
	}
	f := Frame{Event: Event(event)}
	if payload, ok := fields["data"]; ok && payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
		}
		f.Data = raw
	}
	return f, nil
}

func (ProtoCodec) Binary() bool { return true }

func (ProtoCodec) Name() string { return "proto" }
