package parcel

import (
	"sync"
	"testing"
	"time"

	"github.com/Krajiyah/ble-parcel/pkg/models"
	"github.com/Krajiyah/ble-parcel/pkg/store"
	"github.com/rs/zerolog"
	"gotest.tools/assert"
)

const (
	peerA = "aa:aa:aa:aa:aa:aa"
	peerB = "bb:bb:bb:bb:bb:bb"
)

type recordingListener struct {
	mutex      sync.Mutex
	deliveries []models.Delivery
	errs       []error
}

func (l *recordingListener) OnDelivery(d models.Delivery) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.deliveries = append(l.deliveries, d)
}

func (l *recordingListener) OnParcelError(_ string, err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.errs = append(l.errs, err)
}

func newTestReceiver(ordering Ordering) (*Receiver, *recordingListener, store.Store) {
	l := &recordingListener{}
	s := store.NewMemoryStore(store.RetentionPolicy{})
	return NewReceiver(ordering, nil, s, l, zerolog.Nop()), l, s
}

func TestReceiverInterleavedPeers(t *testing.T) {
	rc, l, s := newTestReceiver(SequenceOrder)
	a := packageFor(t, "message from peer A, spanning parcels", testTS, nil)
	b := packageFor(t, "peer B", testTS+1, nil)

	// headers interleave: per peer state means neither transfer resets the other
	n := len(a.Parcels)
	if len(b.Parcels) > n {
		n = len(b.Parcels)
	}
	for i := 0; i < n; i++ {
		if i < len(a.Parcels) {
			rc.Feed(peerA, a.Parcels[i].Bytes())
		}
		if i < len(b.Parcels) {
			rc.FeedEncoded(peerB, b.Parcels[i].Encoded())
		}
	}

	assert.Equal(t, len(l.errs), 0)
	assert.Equal(t, len(l.deliveries), 2)
	byPeer := map[string]models.Delivery{}
	for _, d := range l.deliveries {
		byPeer[d.Peer] = d
		assert.Assert(t, d.Verified)
		assert.Assert(t, d.ID != "")
	}
	assert.Equal(t, byPeer["AA:AA:AA:AA:AA:AA"].Text, "message from peer A, spanning parcels")
	assert.Equal(t, byPeer["BB:BB:BB:BB:BB:BB"].Text, "peer B")
	assert.Equal(t, byPeer["BB:BB:BB:BB:BB:BB"].ParcelCount, len(b.Parcels))
	assert.DeepEqual(t, rc.Peers(), []string{"AA:AA:AA:AA:AA:AA", "BB:BB:BB:BB:BB:BB"})

	pkgs, err := s.Snapshot(peerB)
	assert.NilError(t, err)
	assert.Equal(t, len(pkgs), 1)
	assert.Equal(t, pkgs[0].Timestamp, testTS+1)
	assert.DeepEqual(t, pkgs[0].Parcels, b.Encoded())
}

func TestReceiverConcurrentPeers(t *testing.T) {
	rc, l, _ := newTestReceiver(SequenceOrder)
	peers := []string{"01", "02", "03", "04", "05", "06", "07", "08"}
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			pkg := packageFor(t, "payload for "+peer, testTS, nil)
			for _, p := range pkg.Parcels {
				rc.Feed(peer, p.Bytes())
			}
		}(peer)
	}
	wg.Wait()
	assert.Equal(t, len(l.deliveries), len(peers))
	for _, d := range l.deliveries {
		assert.Assert(t, d.Verified)
		assert.Equal(t, d.Text, "payload for "+d.Peer)
	}
}

func TestReceiverReportsProblems(t *testing.T) {
	rc, l, s := newTestReceiver(SequenceOrder)
	rc.Feed(peerA, []byte("xyz1nope"))
	assert.Equal(t, len(l.errs), 1)
	assert.Assert(t, Is(l.errs[0], ErrMalformedParcel))

	// stray parcel with no transfer is ignored without a callback
	rc.Feed(peerA, []byte("0003stray"))
	assert.Equal(t, len(l.errs), 1)
	assert.Equal(t, rc.State(peerA), Idle)

	pkg := packageFor(t, "hello", testTS, nil)
	pkg.Parcels[1].Body = []byte("jello")
	for _, p := range pkg.Parcels {
		rc.Feed(peerA, p.Bytes())
	}
	assert.Equal(t, len(l.errs), 2)
	assert.Assert(t, Is(l.errs[1], ErrIntegrityMismatch))
	assert.Equal(t, len(l.deliveries), 1)
	assert.Assert(t, !l.deliveries[0].Verified)
	assert.Equal(t, l.deliveries[0].Text, "jello")
	assert.Equal(t, rc.State(peerA), Complete)

	pkgs, err := s.Snapshot(peerA)
	assert.NilError(t, err)
	assert.Equal(t, len(pkgs), 1)
}

func TestReceiverForget(t *testing.T) {
	rc, _, _ := newTestReceiver(ArrivalOrder)
	pkg := packageFor(t, "hello", testTS, nil)
	rc.Feed(peerA, pkg.Parcels[0].Bytes())
	r, ok := rc.Reassembler(peerA)
	assert.Assert(t, ok)
	assert.Equal(t, r.State(), Collecting)
	rc.Forget(peerA)
	_, ok = rc.Reassembler(peerA)
	assert.Assert(t, !ok)
	assert.Equal(t, len(rc.Peers()), 0)
}

func TestReceiverWithoutArchiveOrListener(t *testing.T) {
	rc := NewReceiver(SequenceOrder, nil, nil, nil, zerolog.Nop())
	pkg := packageFor(t, "hello", testTS, nil)
	for _, p := range pkg.Parcels {
		rc.Feed(peerA, p.Bytes())
	}
	assert.Equal(t, rc.State(peerA), Complete)
}

func TestReceiverPrunesIdlePeers(t *testing.T) {
	rc, l, _ := newTestReceiver(SequenceOrder)
	clock := time.Unix(testTS, 0)
	rc.now = func() time.Time { return clock }

	done := packageFor(t, "finished", testTS, nil)
	for _, p := range done.Parcels {
		rc.Feed(peerA, p.Bytes())
	}
	pending := packageFor(t, "still going", testTS, nil)
	rc.Feed(peerB, pending.Parcels[0].Bytes())
	assert.DeepEqual(t, rc.Peers(), []string{"AA:AA:AA:AA:AA:AA", "BB:BB:BB:BB:BB:BB"})

	clock = clock.Add(DefaultIdleTimeout / 2)
	assert.DeepEqual(t, rc.PruneIdle(), []string{})

	// the next parcel from anyone sweeps finished peers; a peer mid transfer is kept
	clock = clock.Add(DefaultIdleTimeout)
	rc.Feed("cc:cc:cc:cc:cc:cc", []byte("0003stray"))
	assert.DeepEqual(t, rc.Peers(), []string{"BB:BB:BB:BB:BB:BB", "CC:CC:CC:CC:CC:CC"})
	assert.Equal(t, rc.State(peerA), Idle)

	for _, p := range pending.Parcels[1:] {
		rc.Feed(peerB, p.Bytes())
	}
	assert.Equal(t, len(l.deliveries), 2)
	assert.Equal(t, l.deliveries[1].Text, "still going")

	clock = clock.Add(2 * DefaultIdleTimeout)
	assert.DeepEqual(t, rc.PruneIdle(), []string{"BB:BB:BB:BB:BB:BB", "CC:CC:CC:CC:CC:CC"})
	assert.Equal(t, len(rc.Peers()), 0)
}

func TestReceiverIdleTimeoutDisabled(t *testing.T) {
	rc, _, _ := newTestReceiver(ArrivalOrder)
	clock := time.Unix(testTS, 0)
	rc.now = func() time.Time { return clock }
	rc.SetIdleTimeout(0)
	pkg := packageFor(t, "hello", testTS, nil)
	for _, p := range pkg.Parcels {
		rc.Feed(peerA, p.Bytes())
	}
	clock = clock.Add(24 * time.Hour)
	assert.Assert(t, rc.PruneIdle() == nil)
	assert.Equal(t, rc.State(peerA), Complete)
}
