package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleParams() Parameters {
	return Parameters{
		NewValue(ParamValueInput, 3, 4),
		NewMemref(ParamMemrefInout, []byte("hello")),
		NewValue(ParamValueOutput, 0, 0),
		{},
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	maxBuf := bytes.Repeat([]byte{0xa5}, MaxMemrefSize)

	tests := []struct {
		name string
		msg  Message
	}{
		{"open session", &OpenSession{UUID: "8aaaf200-2450-11e4-abe2-0002a5d5c51b", ConnectionMethod: LoginUser, Params: sampleParams()}},
		{"open session empty params", &OpenSession{}},
		{"close session", &CloseSession{SessionID: 42}},
		{"invoke command", &InvokeCommand{SessionID: 1, CommandID: 7, Params: sampleParams()}},
		{"invoke command max ids", &InvokeCommand{SessionID: ^uint32(0), CommandID: ^uint32(0)}},
		{"invoke command max buffer", &InvokeCommand{SessionID: 2, CommandID: 1, Params: Parameters{NewMemref(ParamMemrefInput, maxBuf)}}},
		{"request cancellation", &RequestCancellation{SessionID: 9}},
		{"destroy", &Destroy{}},
		{"open session result", &OpenSessionResult{Status: 0, SessionID: 1}},
		{"close session result", &CloseSessionResult{Status: 0xFFFF0008, SessionID: 5}},
		{"invoke command result", &InvokeCommandResult{Status: 0xFFFF0006, SessionID: 3, CommandID: 7, Params: sampleParams()}},
		{"request cancellation result", &RequestCancellationResult{Status: 0xFFFF000A, SessionID: 4}},
		{"destroy result", &DestroyResult{Status: 0}},
		{"register", &Register{UUID: "8aaaf200-2450-11e4-abe2-0002a5d5c51b"}},
		{"register empty", &Register{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.msg)
			require.NoError(t, err)

			got, err := Unmarshal(b)
			require.NoError(t, err)
			require.Equal(t, tt.msg, got)
		})
	}
}

func TestMarshal_IsDeterministic(t *testing.T) {
	m := &InvokeCommand{SessionID: 1, CommandID: 7, Params: sampleParams()}

	b1, err := Marshal(m)
	require.NoError(t, err)
	b2, err := Marshal(m)
	require.NoError(t, err)

	require.Equal(t, b1, b2)
}

func TestMarshal_EmptyBufferDecodesAsNil(t *testing.T) {
	m := &InvokeCommand{Params: Parameters{NewMemref(ParamMemrefOutput, []byte{})}}

	b, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)

	p := got.(*InvokeCommand).Params[0]
	require.Equal(t, ParamMemrefOutput, p.Type)
	require.Nil(t, p.Data)
}

func TestMarshal_RejectsOversizedMemref(t *testing.T) {
	m := &InvokeCommand{Params: Parameters{NewMemref(ParamMemrefInput, make([]byte, MaxMemrefSize+1))}}

	_, err := Marshal(m)
	require.ErrorIs(t, err, ErrEncode)

	_, err = Marshal(nil)
	require.ErrorIs(t, err, ErrEncode)
}

func TestUnmarshal_Errors(t *testing.T) {
	valid, err := Marshal(&InvokeCommand{SessionID: 1, CommandID: 2, Params: sampleParams()})
	require.NoError(t, err)

	unknownKind := protowire.AppendTag(nil, 99, protowire.BytesType)
	unknownKind = protowire.AppendBytes(unknownKind, nil)

	wrongWireType := protowire.AppendTag(nil, protowire.Number(KindCloseSession), protowire.VarintType)
	wrongWireType = protowire.AppendVarint(wrongWireType, 1)

	badField := protowire.AppendTag(nil, 1, protowire.BytesType)
	badField = protowire.AppendBytes(badField, []byte("x"))
	badFieldType := protowire.AppendTag(nil, protowire.Number(KindCloseSession), protowire.BytesType)
	badFieldType = protowire.AppendBytes(badFieldType, badField)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-3]},
		{"trailing bytes", append(append([]byte(nil), valid...), 0x00)},
		{"unknown kind", unknownKind},
		{"wrong wire type", wrongWireType},
		{"field with wrong wire type", badFieldType},
		{"garbage", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal(tt.input)
			require.ErrorIs(t, err, ErrDecode)
			require.Nil(t, got)
		})
	}
}

func TestUnmarshal_UnknownParamTypeIsNone(t *testing.T) {
	var slot []byte
	slot = appendUint32(slot, 1, 4)
	slot = appendUint32(slot, 3, 11)

	var block []byte
	block = appendBytes(block, 1, slot)

	var body []byte
	body = appendUint32(body, 1, 1)
	body = appendUint32(body, 2, 7)
	body = appendBytes(body, 3, block)

	b := appendBytes(nil, protowire.Number(KindInvokeCommand), body)

	got, err := Unmarshal(b)
	require.NoError(t, err)

	p := got.(*InvokeCommand).Params[0]
	require.Equal(t, ParamNone, p.Type)
	require.Equal(t, uint32(11), p.Value.A)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	var body []byte
	body = appendUint32(body, 1, 5)
	body = appendString(body, 15, "from a newer peer")

	b := appendBytes(nil, protowire.Number(KindCloseSession), body)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, &CloseSession{SessionID: 5}, got)
}

func TestParameters_Clone(t *testing.T) {
	orig := sampleParams()
	cl := orig.Clone()
	require.Equal(t, orig, cl)

	cl[1].Data[0] = 'j'
	require.Equal(t, []byte("hello"), orig[1].Data)
}

func TestParamTypeFromUint32(t *testing.T) {
	for _, v := range []uint32{0, 4, 8, 1000} {
		require.Equal(t, ParamNone, ParamTypeFromUint32(v))
	}

	for _, p := range []ParamType{ParamValueInput, ParamValueOutput, ParamValueInout, ParamMemrefInput, ParamMemrefOutput, ParamMemrefInout} {
		require.Equal(t, p, ParamTypeFromUint32(uint32(p)))
	}
}
