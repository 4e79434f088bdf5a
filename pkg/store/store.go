package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/pkg/errors"
)

// Package is the archived form of one transfer
type Package struct {
	Timestamp int64
	Parcels   []string
}

// Store is the append-only archive of transfers, keyed by originating device
type Store interface {
	StorePackage(deviceID string, timestamp int64, parcels []string) error
	// Snapshot returns a copy of the device's packages, oldest first
	Snapshot(deviceID string) ([]Package, error)
	Devices() ([]string, error)
	Close() error
}

// RetentionPolicy bounds store growth; zero values disable the respective bound
type RetentionPolicy struct {
	MaxPerDevice int
	MaxAge       time.Duration
}

func (p RetentionPolicy) cutoff(now time.Time) int64 {
	if p.MaxAge <= 0 {
		return 0
	}
	return now.Add(-p.MaxAge).Unix()
}

var errEmptyDevice = errors.New("device id is required")

// MemoryStore keeps packages for the lifetime of the process
type MemoryStore struct {
	mutex  sync.RWMutex
	data   map[string][]Package
	policy RetentionPolicy
	now    func() time.Time
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore(policy RetentionPolicy) *MemoryStore {
	return &MemoryStore{data: map[string][]Package{}, policy: policy, now: time.Now}
}

// StorePackage appends a package under deviceID, creating its log when new
func (s *MemoryStore) StorePackage(deviceID string, timestamp int64, parcels []string) error {
	if deviceID == "" {
		return errEmptyDevice
	}
	deviceID = util.NormalizeAddr(deviceID)
	pkg := Package{Timestamp: timestamp, Parcels: append([]string(nil), parcels...)}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data[deviceID] = s.evict(append(s.data[deviceID], pkg))
	return nil
}

func (s *MemoryStore) evict(pkgs []Package) []Package {
	if cutoff := s.policy.cutoff(s.now()); cutoff > 0 {
		kept := pkgs[:0]
		for _, p := range pkgs {
			if p.Timestamp >= cutoff {
				kept = append(kept, p)
			}
		}
		pkgs = kept
	}
	if s.policy.MaxPerDevice > 0 && len(pkgs) > s.policy.MaxPerDevice {
		pkgs = append([]Package(nil), pkgs[len(pkgs)-s.policy.MaxPerDevice:]...)
	}
	return pkgs
}

// Snapshot returns a copy of deviceID's packages
func (s *MemoryStore) Snapshot(deviceID string) ([]Package, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	pkgs := s.data[util.NormalizeAddr(deviceID)]
	ret := make([]Package, len(pkgs))
	for i, p := range pkgs {
		ret[i] = Package{Timestamp: p.Timestamp, Parcels: append([]string(nil), p.Parcels...)}
	}
	return ret, nil
}

// Devices lists every device with at least one package, sorted
func (s *MemoryStore) Devices() ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ret := make([]string, 0, len(s.data))
	for id, pkgs := range s.data {
		if len(pkgs) > 0 {
			ret = append(ret, id)
		}
	}
	sort.Strings(ret)
	return ret, nil
}

func (s *MemoryStore) Close() error { return nil }
