package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSeqRoundTrip(t *testing.T) {
	b := ByteSeq{0x00, 0xA4, 0x04, 0x00, 0x00}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, "[0,164,4,0,0]", string(data))

	var out ByteSeq
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, b, out)
}

func TestByteSeqNull(t *testing.T) {
	var b ByteSeq
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var out ByteSeq
	require.NoError(t, json.Unmarshal([]byte("null"), &out))
	assert.Nil(t, out)
}

func TestByteSeqOutOfRange(t *testing.T) {
	var out ByteSeq
	assert.Error(t, json.Unmarshal([]byte("[0,256]"), &out))
	assert.Error(t, json.Unmarshal([]byte("[-1]"), &out))
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", `{"id":"r1","method":"platform.init"}`, false},
		{"missing id", `{"method":"platform.init"}`, true},
		{"unknown method", `{"id":"r1","method":"platform.selfDestruct"}`, true},
		{"not json", `{{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseResponseExclusive(t *testing.T) {
	_, err := ParseResponse([]byte(`{"id":"r1","result":{"ok":true},"error":{"code":"Timeout","message":"x"}}`))
	assert.Error(t, err)

	rsp, err := ParseResponse([]byte(`{"id":"r1","error":{"code":"HandleNotFound","message":"no such handle"}}`))
	require.NoError(t, err)
	require.NotNil(t, rsp.Error)
	assert.Equal(t, CodeHandleNotFound, rsp.Error.Code)
}

func TestRequestParamsRoundTrip(t *testing.T) {
	req, err := NewRequest("r9", MethodCardTransmit, TransmitParams{
		Handle:  "h1",
		Command: &CommandBody{Cla: 0x00, Ins: 0xA4, P1: 0x04, P2: 0x00},
	})
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	parsed, err := ParseRequest(data)
	require.NoError(t, err)
	assert.Equal(t, MethodCardTransmit, parsed.Method)

	var params TransmitParams
	require.NoError(t, DecodeParams(parsed, &params))
	assert.Equal(t, "h1", params.Handle)
	require.NotNil(t, params.Command)
	assert.Equal(t, uint8(0xA4), params.Command.Ins)
	assert.Nil(t, params.Raw)
}

func TestParseFrame(t *testing.T) {
	f := MustFrame(FrameAuthChallenge, AuthChallenge{Challenge: ByteSeq{1, 2, 3}})
	data, err := json.Marshal(f)
	require.NoError(t, err)

	parsed, err := ParseFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameAuthChallenge, parsed.Type)

	var ch AuthChallenge
	require.NoError(t, DecodePayload(parsed, &ch))
	assert.Equal(t, ByteSeq{1, 2, 3}, ch.Challenge)
}

func TestParseFrameRejectsUnknownType(t *testing.T) {
	_, err := ParseFrame([]byte(`{"type":"teleport"}`))
	assert.Error(t, err)
	_, err = ParseFrame([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = ParseFrame([]byte(`not json`))
	assert.Error(t, err)
}
