package parcel

import (
	"strings"
	"sync"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/bradfitz/slice"
	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
)

// State of a Reassembler
type State int

const (
	// Idle means no header has been seen
	Idle State = iota
	// Collecting means a header was seen and fragments are accumulating
	Collecting
	// Complete means the terminal fragment arrived and the digest was checked
	Complete
)

func (s State) String() string {
	return []string{"Idle", "Collecting", "Complete"}[s]
}

// Ordering selects how fragments are assembled
type Ordering int

const (
	// SequenceOrder buffers fragments by sequence number and completes once all of them are present
	SequenceOrder Ordering = iota
	// ArrivalOrder appends fragments as they arrive and completes on the terminal sequence number
	ArrivalOrder
)

func (o Ordering) String() string {
	return []string{"sequence", "arrival"}[o]
}

// ParseOrdering maps a config value onto an Ordering
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequence":
		return SequenceOrder, nil
	case "arrival":
		return ArrivalOrder, nil
	}
	return SequenceOrder, errors.Errorf("unknown ordering %q (want sequence or arrival)", s)
}

// Result is a completed transfer
type Result struct {
	Header Header
	// Payload is the reassembled payload with the digest split off, before the transform is reversed
	Payload []byte
	Digest  string
	// Text is the opened payload when Verified, the raw payload otherwise
	Text     string
	Verified bool
	// Parcels is every parcel accepted for the transfer, header included, in arrival order
	Parcels []Parcel
}

// Reassembler is the receive side state machine for one peer
type Reassembler struct {
	mutex     sync.Mutex
	ordering  Ordering
	transform Transform
	state     State
	header    Header
	buffer    []byte
	fragments map[int][]byte
	seen      mapset.Set
	log       []Parcel
}

// NewReassembler returns an Idle reassembler; a nil transform leaves payloads unmodified
func NewReassembler(ordering Ordering, transform Transform) *Reassembler {
	if transform == nil {
		transform = NopTransform{}
	}
	r := &Reassembler{ordering: ordering, transform: transform}
	r.reset()
	return r
}

func (r *Reassembler) reset() {
	r.state = Idle
	r.header = Header{}
	r.buffer = []byte{}
	r.fragments = map[int][]byte{}
	r.seen = mapset.NewSet()
	r.log = []Parcel{}
}

// Receive decodes and consumes one encoded parcel. A non-nil Result is returned when the
// transfer completes; it comes with ErrIntegrityMismatch when the digest does not verify.
func (r *Reassembler) Receive(encoded string) (*Result, error) {
	p, err := DecodeParcel(encoded)
	if err != nil {
		return nil, err
	}
	return r.ReceiveParcel(p)
}

// ReceiveRaw consumes one parcel exactly as it came off the characteristic
func (r *Reassembler) ReceiveRaw(raw []byte) (*Result, error) {
	p, err := ParseParcel(raw)
	if err != nil {
		return nil, err
	}
	return r.ReceiveParcel(p)
}

// ReceiveParcel consumes one parsed parcel
func (r *Reassembler) ReceiveParcel(p Parcel) (*Result, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if p.Seq == util.HeaderSequence {
		h, err := ParseHeader(p.Body)
		if err != nil {
			return nil, err
		}
		r.reset()
		r.header = h
		r.state = Collecting
		r.log = append(r.log, p)
		return nil, nil
	}
	if r.state != Collecting || p.Seq > r.header.Count {
		return nil, errors.Wrapf(ErrOutOfRangeSequence, "sequence %s while %s with count %d", FormatSequence(p.Seq), r.state, r.header.Count)
	}
	if r.ordering == ArrivalOrder {
		r.buffer = append(r.buffer, p.Body...)
		r.log = append(r.log, p)
		if p.Seq != r.header.Count {
			return nil, nil
		}
		return r.finish(r.buffer)
	}
	if !r.seen.Add(p.Seq) {
		return nil, nil
	}
	r.fragments[p.Seq] = p.Body
	r.log = append(r.log, p)
	if r.seen.Cardinality() < r.header.Count-util.HeaderSequence {
		return nil, nil
	}
	return r.finish(r.assemble())
}

func (r *Reassembler) sequences() []int {
	seqs := make([]int, 0, len(r.fragments))
	for seq := range r.fragments {
		seqs = append(seqs, seq)
	}
	slice.Sort(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

func (r *Reassembler) assemble() []byte {
	buf := []byte{}
	for _, seq := range r.sequences() {
		buf = append(buf, r.fragments[seq]...)
	}
	return buf
}

func (r *Reassembler) finish(buf []byte) (*Result, error) {
	r.state = Complete
	at := len(buf) - util.DigestSize
	if at < 0 {
		at = 0
	}
	payload := make([]byte, at)
	copy(payload, buf[:at])
	res := &Result{
		Header:  r.header,
		Payload: payload,
		Digest:  string(buf[at:]),
		Text:    string(payload),
		Parcels: append([]Parcel(nil), r.log...),
	}
	if !util.VerifyDigest(payload, r.header.Timestamp, res.Digest) {
		return res, errors.Wrapf(ErrIntegrityMismatch, "digest %q does not match payload at %d", res.Digest, r.header.Timestamp)
	}
	text, err := r.transform.Open(string(payload))
	if err != nil {
		return res, errors.Wrap(ErrIntegrityMismatch, err.Error())
	}
	res.Text = text
	res.Verified = true
	return res, nil
}

// State returns where the state machine currently is
func (r *Reassembler) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

// Header returns the header of the current (or last) transfer
func (r *Reassembler) Header() Header {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.header
}

// Buffered returns the payload bytes accumulated so far, digest fragments included
func (r *Reassembler) Buffered() []byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.ordering == ArrivalOrder {
		return append([]byte(nil), r.buffer...)
	}
	return r.assemble()
}

// Missing lists the sequence numbers still outstanding for the active transfer
func (r *Reassembler) Missing() []int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.state != Collecting {
		return nil
	}
	missing := []int{}
	for seq := util.FirstDataSequence; seq <= r.header.Count; seq++ {
		if r.ordering == SequenceOrder && r.seen.Contains(seq) {
			continue
		}
		if r.ordering == ArrivalOrder && r.arrived(seq) {
			continue
		}
		missing = append(missing, seq)
	}
	return missing
}

func (r *Reassembler) arrived(seq int) bool {
	for _, p := range r.log {
		if p.Seq == seq {
			return true
		}
	}
	return false
}

// Log returns every parcel accepted for the current (or last) transfer
func (r *Reassembler) Log() []Parcel {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Parcel(nil), r.log...)
}

// Reset drops any in-flight transfer
func (r *Reassembler) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reset()
}
