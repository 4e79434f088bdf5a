package util

import (
	"context"
	"strings"
	"time"

	"github.com/go-ble/ble"
)

const (
	inf = 1000000
)

// AddrEqualAddr compares two bluetooth addresses ignoring case
func AddrEqualAddr(a string, b string) bool {
	return strings.EqualFold(a, b)
}

// NormalizeAddr returns the canonical (upper case) form of a bluetooth address
func NormalizeAddr(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

// UuidEqualStr compares a ble uuid with its dashed string form
func UuidEqualStr(u ble.UUID, s string) bool {
	compare := strings.Replace(s, "-", "", -1)
	return AddrEqualAddr(compare, u.String())
}

// UuidToStr returns the dashed upper case form used as characteristic map keys
func UuidToStr(u ble.UUID) string {
	s := strings.ToUpper(u.String())
	if len(s) != 32 {
		return s
	}
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
}

// MakeINFContext returns a context that only ends on SIGINT/SIGTERM
func MakeINFContext() context.Context {
	return ble.WithSigHandler(context.WithTimeout(context.Background(), inf*time.Hour))
}

const (
	// ATTHeaderSize is the opcode and handle overhead of an ATT write command
	ATTHeaderSize = 3
	// MaxParcelMTU is the largest parcel that fits one write command at the largest ATT MTU
	MaxParcelMTU = ble.MaxMTU - ATTHeaderSize
)

// ATTMTU returns the ATT MTU to request so a parcel of parcelMTU bytes fits one write command
func ATTMTU(parcelMTU int) int {
	mtu := parcelMTU + ATTHeaderSize
	if mtu < ble.DefaultMTU {
		return ble.DefaultMTU
	}
	if mtu > ble.MaxMTU {
		return ble.MaxMTU
	}
	return mtu
}
