package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const ContentType = "application/protobuf"

// Encode marshals e as a google.protobuf.Struct so consumers need no
// generated types.
func Encode(e *StudentEvent) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"id":         e.ID.String(),
		"type":       string(e.Type),
		"student_id": e.StudentID,
		"at":         e.At.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("events: encode: %w", err)
	}
	return proto.Marshal(s)
}

func Decode(b []byte) (*StudentEvent, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("events: decode: %w", err)
	}
	f := s.GetFields()

	id, err := uuid.Parse(f["id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("events: decode id: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, f["at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("events: decode at: %w", err)
	}

	return &StudentEvent{
		ID:        id,
		Type:      Type(f["type"].GetStringValue()),
		StudentID: f["student_id"].GetStringValue(),
		At:        at,
	}, nil
}
