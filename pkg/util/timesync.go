package util

import (
	"time"
)

// Clock supplies the unix timestamp (seconds) stamped into header parcels
type Clock interface {
	Now() int64
}

// SystemClock reads the local wall clock
type SystemClock struct{}

// Now returns the current unix timestamp in seconds
func (SystemClock) Now() int64 { return UnixTS() }

// FixedClock always returns the same timestamp, useful for replaying a transfer
type FixedClock int64

// Now returns the fixed timestamp
func (c FixedClock) Now() int64 { return int64(c) }

// TimeSync is a utility struct for syncing time with a given source of truth
type TimeSync struct {
	offset int64
}

// NewTimeSync generates the utility struct for time syncing
func NewTimeSync(initTS int64) *TimeSync {
	return &TimeSync{offset: initTS - UnixTS()}
}

// Now returns the current unix timestamp in seconds offset by diff from source of truth
func (t *TimeSync) Now() int64 {
	return UnixTS() + t.offset
}

// Offset returns the difference in seconds between the source of truth and the local clock
func (t *TimeSync) Offset() int64 { return t.offset }

// UnixTS returns the current unix (epoch) timestamp in seconds
func UnixTS() int64 {
	return time.Now().Unix()
}
