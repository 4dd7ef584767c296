package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequiresAction(t *testing.T) {
	_, err := Decode([]byte(`{"content":"hi"}`))
	assert.Error(t, err)
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestDecodeRoundtrip(t *testing.T) {
	f, err := Decode([]byte(`{"action":"sendMessage","channel":"u3","content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "sendMessage", f.Action)
	assert.Equal(t, "u3", f.Channel)

	data, err := Encode(f)
	require.NoError(t, err)

	f2, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f, f2)
}

func TestMarkUnmarkRoundtrip(t *testing.T) {
	data := []byte(`{"action":"addRoom"}`)

	marked := Mark(data)
	assert.Equal(t, byte('p'), marked[0])

	payload, parsable := Unmark(marked)
	assert.True(t, parsable)
	assert.Equal(t, data, payload)
}

func TestUnmarkPlainFrame(t *testing.T) {
	data := []byte(`{"action":"printMessage"}`)

	payload, parsable := Unmark(data)
	assert.False(t, parsable)
	assert.Equal(t, data, payload)
}
