package util

const (
	// MTU is the max number of bytes a single parcel may occupy on the characteristic
	MTU = 20
	// SequenceWidth is the number of ASCII digits prefixed to every parcel
	SequenceWidth = 4
	// MaxSequence is the highest sequence number representable in SequenceWidth digits
	MaxSequence = 9999
	// HeaderSequence is the sequence number reserved for the header parcel
	HeaderSequence = 1
	// FirstDataSequence is the sequence number of the first payload fragment
	FirstDataSequence = 2
	// DigestSize is the length in bytes of the hex encoded sha256 digest trailing every payload
	DigestSize = 64
	// MainServiceUUID represents UUID for ble service for all ble characteristics
	MainServiceUUID = "ACACFC5A-0E91-445A-B6C3-9653814EA776"
	// DataToReadCharUUID represents UUID for ble characteristic which answers reads with encoded text
	DataToReadCharUUID = "ACACFC5C-0E91-445A-B6C3-9653814EA776"
	// DataToWriteCharUUID represents UUID for ble characteristic which accepts parcel writes
	DataToWriteCharUUID = "ACACFC5D-0E91-445A-B6C3-9653814EA776"
	// TimeSyncUUID represents UUID for ble clients to time sync with ble server
	TimeSyncUUID = "ACACFC5E-0E91-445A-B6C3-9653814EA776"
)
