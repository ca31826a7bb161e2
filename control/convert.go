package control

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts v through its JSON form, so responses carry the same
// field names as the stored records.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return s, nil
}

func toList[T any](items []T) (*structpb.ListValue, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	l := &structpb.ListValue{}
	if err := protojson.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return l, nil
}

func intField(s *structpb.Struct, key string) int {
	if v, ok := s.GetFields()[key]; ok {
		return int(v.GetNumberValue())
	}
	return 0
}

func stringField(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
