package parcel

import (
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/pkg/errors"
)

// Package is the parcelized form of one payload, header first
type Package struct {
	Timestamp int64
	Signature string
	Parcels   []Parcel
}

// Encoded returns every parcel passed through the codec, in send order
func (p *Package) Encoded() []string {
	ret := make([]string, len(p.Parcels))
	for i, parcel := range p.Parcels {
		ret[i] = parcel.Encoded()
	}
	return ret
}

// Header returns the metadata declared by the first parcel
func (p *Package) Header() Header {
	return Header{Count: len(p.Parcels), Timestamp: p.Timestamp}
}

// Parcelizer splits payloads into numbered parcels no larger than mtu
type Parcelizer struct {
	mtu       int
	transform Transform
}

// NewParcelizer validates mtu; a nil transform sends text unmodified
func NewParcelizer(mtu int, transform Transform) (*Parcelizer, error) {
	if mtu <= util.SequenceWidth {
		return nil, errors.Wrapf(ErrInvalidMTU, "mtu %d must exceed the %d byte sequence prefix", mtu, util.SequenceWidth)
	}
	if transform == nil {
		transform = NopTransform{}
	}
	return &Parcelizer{mtu: mtu, transform: transform}, nil
}

// MTU is the max decoded size of every produced parcel
func (pz *Parcelizer) MTU() int { return pz.mtu }

// FragmentSize is the number of payload bytes carried per parcel
func (pz *Parcelizer) FragmentSize() int { return pz.mtu - util.SequenceWidth }

// Package signs text at timestamp and splits text then signature into parcels 0002.., preceded by the header
func (pz *Parcelizer) Package(text string, timestamp int64) (*Package, error) {
	payload, err := pz.transform.Seal(text)
	if err != nil {
		return nil, err
	}
	signature := util.Digest([]byte(payload), timestamp)
	chunks := split([]byte(payload), pz.FragmentSize())
	chunks = append(chunks, split([]byte(signature), pz.FragmentSize())...)
	last := util.FirstDataSequence - 1 + len(chunks)
	if last > util.MaxSequence {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d parcels needed, at most %d available", last, util.MaxSequence)
	}
	header := Header{Count: last, Timestamp: timestamp}.Parcel()
	if header.Len() > pz.mtu {
		return nil, errors.Wrapf(ErrHeaderOverflow, "header %q is %d bytes, mtu is %d", header.String(), header.Len(), pz.mtu)
	}
	parcels := make([]Parcel, 0, last)
	parcels = append(parcels, header)
	for i, chunk := range chunks {
		parcels = append(parcels, Parcel{Seq: util.FirstDataSequence + i, Body: chunk})
	}
	return &Package{Timestamp: timestamp, Signature: signature, Parcels: parcels}, nil
}

// PackageData is Package returning the codec encoded parcels ready for transmission
func (pz *Parcelizer) PackageData(text string, timestamp int64) ([]string, error) {
	pkg, err := pz.Package(text, timestamp)
	if err != nil {
		return nil, err
	}
	return pkg.Encoded(), nil
}

func split(buf []byte, lim int) [][]byte {
	var chunk []byte
	chunks := make([][]byte, 0, len(buf)/lim+1)
	for len(buf) >= lim {
		chunk, buf = buf[:lim], buf[lim:]
		chunks = append(chunks, chunk)
	}
	if len(buf) > 0 {
		chunks = append(chunks, buf)
	}
	return chunks
}
