package flowgraphv1

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// Request field names.
const (
	FieldPID      = "pid"
	FieldUID      = "uid"
	FieldName     = "name"
	FieldFromPID  = "from_pid"
	FieldFromUID  = "from_uid"
	FieldToPID    = "to_pid"
	FieldToUID    = "to_uid"
	FieldBytes    = "bytes"
	FieldTaintTag = "taint_tag"
)

// Int32Fields builds a request struct from integer fields.
func Int32Fields(fields map[string]int32) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for k, v := range fields {
		s.Fields[k] = structpb.NewNumberValue(float64(v))
	}
	return s
}

// Int32 reads a required 32-bit integer field.
func Int32(s *structpb.Struct, name string) (int32, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number", name)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("field %q is not a 32-bit integer: %v", name, f)
	}
	return int32(f), nil
}

// String reads a required string field.
func String(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("missing field %q", name)
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", name)
	}
	return str.StringValue, nil
}
