package flowgraphv1

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestInt32Fields(t *testing.T) {
	s := Int32Fields(map[string]int32{FieldPID: 42, FieldUID: -1})

	pid, err := Int32(s, FieldPID)
	require.NoError(t, err)
	assert.Equal(t, int32(42), pid)

	uid, err := Int32(s, FieldUID)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), uid)
}

func TestInt32Rejects(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"frac": structpb.NewNumberValue(1.5),
		"big":  structpb.NewNumberValue(math.MaxInt32 + 1),
		"str":  structpb.NewStringValue("1"),
	}}
	for _, name := range []string{"frac", "big", "str", "missing"} {
		_, err := Int32(s, name)
		assert.Error(t, err, name)
	}
}

func TestString(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldName: structpb.NewStringValue("com.example"),
		FieldPID:  structpb.NewNumberValue(1),
	}}
	name, err := String(s, FieldName)
	require.NoError(t, err)
	assert.Equal(t, "com.example", name)

	_, err = String(s, FieldPID)
	assert.Error(t, err)
	_, err = String(s, "nope")
	assert.Error(t, err)
}
