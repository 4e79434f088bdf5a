package parcel

import (
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/pkg/errors"
)

// Transform is applied to the text before parcelization and reversed after a verified reassembly
type Transform interface {
	Seal(text string) (string, error)
	Open(payload string) (string, error)
}

// NopTransform sends text as is
type NopTransform struct{}

func (NopTransform) Seal(text string) (string, error)    { return text, nil }
func (NopTransform) Open(payload string) (string, error) { return payload, nil }

// AESTransform encrypts text with a pre-shared secret; the ciphertext travels as base64 text
type AESTransform struct {
	secret string
}

// NewAESTransform returns a transform keyed by secret
func NewAESTransform(secret string) AESTransform {
	return AESTransform{secret: secret}
}

func (t AESTransform) Seal(text string) (string, error) {
	enc, err := util.Encrypt([]byte(text), t.secret)
	if err != nil {
		return "", errors.Wrap(err, "encrypt issue")
	}
	return util.EncodeBytes(enc), nil
}

func (t AESTransform) Open(payload string) (string, error) {
	enc, err := util.DecodeBytes(payload)
	if err != nil {
		return "", err
	}
	plain, err := util.Decrypt(enc, t.secret)
	if err != nil {
		return "", errors.Wrap(err, "decrypt issue")
	}
	return string(plain), nil
}
