package parcel

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/pkg/errors"
)

const headerPrefix = "p:"

// Parcel is a single bounded-size unit of transmission: a 4 digit sequence prefix followed by a fragment
type Parcel struct {
	Seq  int
	Body []byte
}

// Header is the metadata carried by parcel 0001
type Header struct {
	// Count is the sequence number of the last parcel, i.e. the number of parcels including the header
	Count     int
	Timestamp int64
}

// FormatSequence renders seq as the zero padded wire prefix
func FormatSequence(seq int) string {
	return fmt.Sprintf("%0*d", util.SequenceWidth, seq)
}

// Bytes returns the decoded wire form of the parcel
func (p Parcel) Bytes() []byte {
	b := make([]byte, 0, util.SequenceWidth+len(p.Body))
	b = append(b, FormatSequence(p.Seq)...)
	return append(b, p.Body...)
}

// Encoded returns the parcel passed through the codec
func (p Parcel) Encoded() string {
	return util.EncodeBytes(p.Bytes())
}

// Len is the decoded length of the parcel in bytes
func (p Parcel) Len() int {
	return util.SequenceWidth + len(p.Body)
}

func (p Parcel) String() string {
	return string(p.Bytes())
}

// ParseParcel splits a decoded parcel into sequence and body
func ParseParcel(raw []byte) (Parcel, error) {
	if len(raw) < util.SequenceWidth {
		return Parcel{}, errors.Wrapf(ErrMalformedParcel, "parcel of %d bytes has no sequence prefix", len(raw))
	}
	seq := 0
	for _, c := range raw[:util.SequenceWidth] {
		if c < '0' || c > '9' {
			return Parcel{}, errors.Wrapf(ErrMalformedParcel, "prefix %q is not %d decimal digits", raw[:util.SequenceWidth], util.SequenceWidth)
		}
		seq = seq*10 + int(c-'0')
	}
	if seq < util.HeaderSequence {
		return Parcel{}, errors.Wrapf(ErrMalformedParcel, "sequence %s out of 0001-%04d", raw[:util.SequenceWidth], util.MaxSequence)
	}
	body := make([]byte, len(raw)-util.SequenceWidth)
	copy(body, raw[util.SequenceWidth:])
	return Parcel{Seq: seq, Body: body}, nil
}

// DecodeParcel runs the codec on an encoded parcel and parses it
func DecodeParcel(encoded string) (Parcel, error) {
	raw, err := util.DecodeBytes(encoded)
	if err != nil {
		return Parcel{}, errors.Wrap(ErrMalformedParcel, err.Error())
	}
	return ParseParcel(raw)
}

// Parcel returns the header as parcel 0001
func (h Header) Parcel() Parcel {
	body := headerPrefix + strconv.Itoa(h.Count) + "," + strconv.FormatInt(h.Timestamp, 10)
	return Parcel{Seq: util.HeaderSequence, Body: []byte(body)}
}

// ParseHeader parses a header parcel body of the form p:<count>,<timestamp>
func ParseHeader(body []byte) (Header, error) {
	if !bytes.HasPrefix(body, []byte(headerPrefix)) {
		return Header{}, errors.Wrapf(ErrMalformedParcel, "header body %q missing %q", body, headerPrefix)
	}
	parts := bytes.SplitN(body[len(headerPrefix):], []byte(","), 2)
	if len(parts) != 2 {
		return Header{}, errors.Wrapf(ErrMalformedParcel, "header body %q missing timestamp", body)
	}
	if !isDigits(parts[0]) || !isDigits(parts[1]) {
		return Header{}, errors.Wrapf(ErrMalformedParcel, "header body %q is not plain decimal", body)
	}
	count, err := strconv.Atoi(string(parts[0]))
	if err != nil {
		return Header{}, errors.Wrapf(ErrMalformedParcel, "header count %q", parts[0])
	}
	if count < util.FirstDataSequence || count > util.MaxSequence {
		return Header{}, errors.Wrapf(ErrMalformedParcel, "header count %d out of %d-%d", count, util.FirstDataSequence, util.MaxSequence)
	}
	ts, err := strconv.ParseInt(string(parts[1]), 10, 64)
	if err != nil {
		return Header{}, errors.Wrapf(ErrMalformedParcel, "header timestamp %q", parts[1])
	}
	return Header{Count: count, Timestamp: ts}, nil
}

func isDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
