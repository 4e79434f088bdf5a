package parcel

import (
	"sort"
	"sync"
	"time"

	"github.com/Krajiyah/ble-parcel/pkg/models"
	"github.com/Krajiyah/ble-parcel/pkg/store"
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is how long a peer with no transfer in flight keeps its reassembler
const DefaultIdleTimeout = 5 * time.Minute

// Receiver owns one Reassembler per peer so interleaved senders never share state
type Receiver struct {
	mutex     sync.Mutex
	ordering  Ordering
	transform Transform
	peers     map[string]*Reassembler
	lastSeen  map[string]time.Time
	lastSweep time.Time
	idle      time.Duration
	archive   store.Store
	listener  models.TransferListener
	logger    zerolog.Logger
	now       func() time.Time
}

// NewReceiver wires reassembly to an archive and a listener; archive may be nil
func NewReceiver(ordering Ordering, transform Transform, archive store.Store, listener models.TransferListener, logger zerolog.Logger) *Receiver {
	if listener == nil {
		listener = models.TransferListenerFuncs{}
	}
	return &Receiver{
		ordering: ordering, transform: transform,
		peers: map[string]*Reassembler{}, lastSeen: map[string]time.Time{},
		idle: DefaultIdleTimeout, archive: archive,
		listener: listener, logger: logger, now: time.Now,
	}
}

// SetIdleTimeout changes how long finished peers are kept; zero keeps them until Forget
func (rc *Receiver) SetIdleTimeout(d time.Duration) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	rc.idle = d
}

func (rc *Receiver) reassemblerFor(peer string) *Reassembler {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	now := rc.now()
	if rc.idle > 0 && now.Sub(rc.lastSweep) >= rc.idle {
		rc.pruneLocked(now)
		rc.lastSweep = now
	}
	rc.lastSeen[peer] = now
	r, ok := rc.peers[peer]
	if !ok {
		r = NewReassembler(rc.ordering, rc.transform)
		rc.peers[peer] = r
	}
	return r
}

// Feed consumes a parcel exactly as written by peer
func (rc *Receiver) Feed(peer string, raw []byte) {
	peer = util.NormalizeAddr(peer)
	res, err := rc.reassemblerFor(peer).ReceiveRaw(raw)
	rc.handle(peer, res, err)
}

// FeedEncoded consumes a codec encoded parcel from peer
func (rc *Receiver) FeedEncoded(peer string, encoded string) {
	peer = util.NormalizeAddr(peer)
	res, err := rc.reassemblerFor(peer).Receive(encoded)
	rc.handle(peer, res, err)
}

func (rc *Receiver) handle(peer string, res *Result, err error) {
	if err != nil && res == nil {
		if Is(err, ErrOutOfRangeSequence) {
			rc.logger.Debug().Str("peer", peer).Err(err).Msg("ignoring parcel")
			return
		}
		rc.logger.Debug().Str("peer", peer).Err(err).Msg("dropping parcel")
		rc.listener.OnParcelError(peer, err)
		return
	}
	if res == nil {
		return
	}
	if err != nil {
		rc.logger.Warn().Str("peer", peer).Err(err).Msg("transfer failed verification")
		rc.listener.OnParcelError(peer, err)
	}
	rc.archiveResult(peer, res)
	d := models.Delivery{
		ID:          uuid.New().String(),
		Peer:        peer,
		Text:        res.Text,
		Timestamp:   res.Header.Timestamp,
		Verified:    res.Verified,
		ParcelCount: res.Header.Count,
		ReceivedAt:  rc.now(),
	}
	rc.logger.Info().Str("peer", peer).Str("transfer", d.ID).Bool("verified", d.Verified).
		Int("parcels", d.ParcelCount).Int64("timestamp", d.Timestamp).Msg("transfer complete")
	rc.listener.OnDelivery(d)
}

func (rc *Receiver) archiveResult(peer string, res *Result) {
	if rc.archive == nil {
		return
	}
	encoded := make([]string, len(res.Parcels))
	for i, p := range res.Parcels {
		encoded[i] = p.Encoded()
	}
	if err := rc.archive.StorePackage(peer, res.Header.Timestamp, encoded); err != nil {
		rc.logger.Error().Str("peer", peer).Err(err).Msg("could not archive transfer")
	}
}

// State returns the reassembly state for peer (Idle when never seen)
func (rc *Receiver) State(peer string) State {
	rc.mutex.Lock()
	r, ok := rc.peers[util.NormalizeAddr(peer)]
	rc.mutex.Unlock()
	if !ok {
		return Idle
	}
	return r.State()
}

// Reassembler exposes peer's state machine for diagnostics
func (rc *Receiver) Reassembler(peer string) (*Reassembler, bool) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	r, ok := rc.peers[util.NormalizeAddr(peer)]
	return r, ok
}

// Peers lists every peer that has sent at least one parcel
func (rc *Receiver) Peers() []string {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	ret := make([]string, 0, len(rc.peers))
	for p := range rc.peers {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

// Forget drops peer's state, e.g. on disconnect
func (rc *Receiver) Forget(peer string) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	peer = util.NormalizeAddr(peer)
	delete(rc.peers, peer)
	delete(rc.lastSeen, peer)
}

// PruneIdle drops every peer with no transfer in flight whose last parcel is older than the idle timeout
func (rc *Receiver) PruneIdle() []string {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	if rc.idle <= 0 {
		return nil
	}
	return rc.pruneLocked(rc.now())
}

// a peer mid transfer is kept however long it has been quiet
func (rc *Receiver) pruneLocked(now time.Time) []string {
	dropped := []string{}
	for peer, r := range rc.peers {
		if now.Sub(rc.lastSeen[peer]) < rc.idle || r.State() == Collecting {
			continue
		}
		delete(rc.peers, peer)
		delete(rc.lastSeen, peer)
		dropped = append(dropped, peer)
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		rc.logger.Debug().Strs("peers", dropped).Msg("pruned idle peers")
	}
	return dropped
}
