package jsoncodec

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string          `json:"name"`
	Count uint64          `json:"count,omitempty"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

func TestMarshalMatchesStdlib(t *testing.T) {
	v := sample{Name: "swap", Count: 3, Raw: json.RawMessage(`{"a":1}`)}

	got, err := Marshal(v)
	require.NoError(t, err)
	want, err := json.Marshal(v)
	require.NoError(t, err)

	assert.JSONEq(t, string(want), string(got))
}

func TestDecoderStream(t *testing.T) {
	in := bytes.NewBufferString("{\"name\":\"a\"}\n{\"name\":\"b\",\"raw\":[1,2]}\n")
	dec := NewDecoder(in)

	var first, second sample
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "a", first.Name)
	assert.Equal(t, "b", second.Name)
	assert.JSONEq(t, "[1,2]", string(second.Raw))
}
