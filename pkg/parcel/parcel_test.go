package parcel

import (
	"testing"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"gotest.tools/assert"
)

func TestFormatSequence(t *testing.T) {
	assert.Equal(t, FormatSequence(1), "0001")
	assert.Equal(t, FormatSequence(42), "0042")
	assert.Equal(t, FormatSequence(9999), "9999")
}

func TestParseParcel(t *testing.T) {
	p, err := ParseParcel([]byte("0002hello"))
	assert.NilError(t, err)
	assert.Equal(t, p.Seq, 2)
	assert.Equal(t, string(p.Body), "hello")
	assert.Equal(t, p.String(), "0002hello")
	assert.Equal(t, p.Len(), 9)
}

func TestParseParcelMalformed(t *testing.T) {
	for _, raw := range []string{"", "001", "abcdhello", "00a1x", "0000body", "-001x"} {
		_, err := ParseParcel([]byte(raw))
		assert.Assert(t, Is(err, ErrMalformedParcel), "raw %q: %v", raw, err)
	}
}

func TestDecodeParcel(t *testing.T) {
	p, err := DecodeParcel(util.EncodeText("0003abc"))
	assert.NilError(t, err)
	assert.Equal(t, p.Seq, 3)
	assert.Equal(t, string(p.Body), "abc")

	_, err = DecodeParcel("@@not-base64@@")
	assert.Assert(t, Is(err, ErrMalformedParcel))
}

func TestHeader(t *testing.T) {
	h := Header{Count: 6, Timestamp: 1700000000}
	assert.Equal(t, h.Parcel().String(), "0001p:6,1700000000")
	parsed, err := ParseHeader(h.Parcel().Body)
	assert.NilError(t, err)
	assert.Equal(t, parsed, h)
}

func TestParseHeaderMalformed(t *testing.T) {
	for _, body := range []string{"", "q:6,1", "p:6", "p:x,1", "p:6,x", "p:1,1700000000", "p:0,1", "p:10000,1"} {
		_, err := ParseHeader([]byte(body))
		assert.Assert(t, Is(err, ErrMalformedParcel), "body %q: %v", body, err)
	}
}

func TestParseHeaderRejectsSigns(t *testing.T) {
	for _, body := range []string{"p:+6,1700000000", "p:6,-5", "p:+6,-5", "p: 6,1700000000", "p:6,"} {
		_, err := ParseHeader([]byte(body))
		assert.Assert(t, Is(err, ErrMalformedParcel), "body %q: %v", body, err)
	}
	r := NewReassembler(SequenceOrder, nil)
	_, err := r.ReceiveRaw([]byte("0001p:+6,-5"))
	assert.Assert(t, Is(err, ErrMalformedParcel))
	assert.Equal(t, r.State(), Idle)
}
