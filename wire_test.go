package tinyquanta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestHeaderRoundTrip(t *testing.T) {
	payload := make([]byte, HeaderSize+4)
	buf := make([]byte, HeaderSize)
	req := RequestHeader{ID: 42, ReqType: 1, ReqSize: 777, RunNs: 0}
	BuildReply(buf, req)
	copy(payload, buf)

	parsed, err := ParseRequestHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, req, parsed)
	assert.Equal(t, uint32(777), parsed.Key())
}

func TestParseRequestHeaderTooShort(t *testing.T) {
	_, err := ParseRequestHeader(make([]byte, HeaderSize-1))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeMalformedFrame))
}

func TestBuildReplyZeroesRunNs(t *testing.T) {
	req := RequestHeader{ID: 1, ReqType: 2, ReqSize: 99, RunNs: 123456}
	buf := make([]byte, HeaderSize)
	reply := BuildReply(buf, req)

	assert.Equal(t, uint32(0), reply.RunNs)
	assert.Equal(t, req.ID, reply.ID)
	assert.Equal(t, req.ReqType, reply.ReqType)
	assert.Equal(t, req.ReqSize, reply.ReqSize)

	roundTripped, err := ParseRequestHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), roundTripped.RunNs)
}
