// Package jsoncodec is the JSON codec used across the router.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func NewEncoder(w io.Writer) sonic.Encoder {
	return defaultConfig.NewEncoder(w)
}

func NewDecoder(r io.Reader) sonic.Decoder {
	return defaultConfig.NewDecoder(r)
}
