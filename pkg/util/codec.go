package util

import (
	"encoding/base64"

	"github.com/pkg/errors"
)

// EncodeText converts text into its transport safe representation
func EncodeText(text string) string {
	return EncodeBytes([]byte(text))
}

// DecodeText reverses EncodeText
func DecodeText(encoded string) (string, error) {
	b, err := DecodeBytes(encoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeBytes converts raw bytes into their transport safe representation
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes
func DecodeBytes(encoded string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode issue")
	}
	return b, nil
}
