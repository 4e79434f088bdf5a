package client

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Krajiyah/ble-parcel/pkg/config"
	"github.com/Krajiyah/ble-parcel/pkg/parcel"
	"github.com/Krajiyah/ble-parcel/pkg/store"
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"gotest.tools/assert"
)

const (
	testServerAddr = "22:22:33:44:55:66"
	testDeviceID   = "sender-1"
	testTS         = int64(1700000000)
)

var (
	errATT  = errors.New("att error")
	errRead = errors.New("read failed")
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConnection struct {
	mutex     sync.Mutex
	writes    [][]byte
	readData  map[string][]byte
	failSeq   map[string]bool
	block     map[string]chan struct{}
	dialed    []string
	scanned   bool
	connected string
	listener  interface{ OnConnected(string) }
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{readData: map[string][]byte{}, failSeq: map[string]bool{}, block: map[string]chan struct{}{}}
}

func (c *fakeConnection) GetConnectedAddr() string { return c.connected }
func (c *fakeConnection) Dial(_ context.Context, addr string) error {
	c.dialed = append(c.dialed, addr)
	c.connected = addr
	c.listener.OnConnected(addr)
	return nil
}
func (c *fakeConnection) Connect(_ context.Context, f ble.AdvFilter) error {
	c.scanned = true
	return errors.New("no advertisers")
}
func (c *fakeConnection) Scan(context.Context, func(ble.Advertisement)) error { return nil }
func (c *fakeConnection) ReadValue(uuid string) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	data, ok := c.readData[uuid]
	if !ok {
		return nil, errRead
	}
	return data, nil
}
func (c *fakeConnection) WriteValue(uuid string, data []byte, noRsp bool) error {
	seq := string(data[:util.SequenceWidth])
	c.mutex.Lock()
	wait, blocked := c.block[seq]
	c.mutex.Unlock()
	if blocked {
		<-wait
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.failSeq[seq] {
		return errATT
	}
	c.writes = append(c.writes, append([]byte{}, data...))
	return nil
}
func (c *fakeConnection) Close() error { return nil }

func (c *fakeConnection) sortedWrites() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ret := []string{}
	for _, w := range c.writes {
		ret = append(ret, string(w))
	}
	sort.Strings(ret)
	return ret
}

type testListener struct {
	mutex     sync.Mutex
	connected []string
	synced    int
	errs      []error
}

func (l *testListener) OnConnected(addr string) { l.connected = append(l.connected, addr) }
func (l *testListener) OnDisconnected()         {}
func (l *testListener) OnTimeSync()             { l.synced++ }
func (l *testListener) OnInternalError(err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.errs = append(l.errs, err)
}

func getTestClient(t *testing.T, mutate func(*config.Config)) (*BLEClient, *fakeConnection, *testListener, store.Store) {
	cfg := config.Default()
	cfg.DeviceID = testDeviceID
	cfg.ServerAddr = testServerAddr
	if mutate != nil {
		mutate(&cfg)
	}
	conn := newFakeConnection()
	l := &testListener{}
	archive := store.NewMemoryStore(store.RetentionPolicy{})
	client, err := NewBLEClientWithSharedConn(cfg, archive, l, zerolog.Nop(), conn)
	assert.NilError(t, err)
	conn.listener = client
	client.clock = util.FixedClock(testTS)
	return client, conn, l, archive
}

func TestConnect(t *testing.T) {
	client, conn, l, _ := getTestClient(t, nil)
	assert.Equal(t, client.Status(), Disconnected)
	assert.NilError(t, client.Connect(context.Background()))
	assert.DeepEqual(t, conn.dialed, []string{testServerAddr})
	assert.DeepEqual(t, l.connected, []string{testServerAddr})
	assert.Equal(t, client.Status(), Connected)
	client.OnDisconnected()
	assert.Equal(t, client.Status(), Disconnected)

	scanning, conn, _, _ := getTestClient(t, func(c *config.Config) { c.ServerAddr = "" })
	assert.ErrorContains(t, scanning.Connect(context.Background()), "could not find a server")
	assert.Assert(t, conn.scanned)
}

func TestSendHello(t *testing.T) {
	client, conn, l, archive := getTestClient(t, nil)
	pkg, err := client.Send(context.Background(), "hello")
	assert.NilError(t, err)
	assert.Equal(t, len(pkg.Parcels), 6)
	assert.Equal(t, len(l.errs), 0)

	written := conn.sortedWrites()
	assert.Equal(t, len(written), 6)
	assert.Equal(t, written[0], "0001p:6,1700000000")
	assert.Equal(t, written[1], "0002hello")

	// writes race each other; the receiver only sees them in order when the link preserves it
	r := parcel.NewReassembler(parcel.SequenceOrder, nil)
	var res *parcel.Result
	for _, w := range written {
		res, err = r.ReceiveRaw([]byte(w))
	}
	assert.NilError(t, err)
	assert.Assert(t, res.Verified)
	assert.Equal(t, res.Text, "hello")

	pkgs, err := archive.Snapshot(testDeviceID)
	assert.NilError(t, err)
	assert.Equal(t, len(pkgs), 1)
	assert.Equal(t, pkgs[0].Timestamp, testTS)
	assert.DeepEqual(t, pkgs[0].Parcels, pkg.Encoded())
}

func TestSendEncrypted(t *testing.T) {
	client, conn, _, _ := getTestClient(t, func(c *config.Config) {
		c.Encrypt = true
		c.Secret = "passwd123"
	})
	_, err := client.Send(context.Background(), "top secret")
	assert.NilError(t, err)
	r := parcel.NewReassembler(parcel.SequenceOrder, parcel.NewAESTransform("passwd123"))
	var res *parcel.Result
	for _, w := range conn.sortedWrites() {
		assert.Assert(t, !strings.Contains(w, "secret"))
		res, err = r.ReceiveRaw([]byte(w))
	}
	assert.NilError(t, err)
	assert.Equal(t, res.Text, "top secret")
}

func TestSendTransportFailures(t *testing.T) {
	client, conn, l, _ := getTestClient(t, nil)
	conn.failSeq["0003"] = true
	conn.failSeq["0005"] = true
	pkg, err := client.Send(context.Background(), "hello")
	assert.Assert(t, pkg != nil)
	errs := multierr.Errors(err)
	assert.Equal(t, len(errs), 2)
	for _, e := range errs {
		assert.Assert(t, parcel.Is(e, parcel.ErrTransportFailure))
		assert.ErrorContains(t, e, "att error")
		assert.Assert(t, errors.Is(e, errATT))
		assert.Equal(t, errors.Cause(e), errATT)
		var terr *parcel.TransportError
		assert.Assert(t, errors.As(e, &terr))
		assert.Assert(t, terr.Op == "parcel 0003" || terr.Op == "parcel 0005", terr.Op)
	}
	assert.Equal(t, len(conn.sortedWrites()), 4)
	assert.Equal(t, len(l.errs), 2)
}

func TestSendWriteTimeout(t *testing.T) {
	client, conn, _, _ := getTestClient(t, func(c *config.Config) { c.WriteTimeout = 20 * time.Millisecond })
	release := make(chan struct{})
	conn.block["0004"] = release
	_, err := client.Send(context.Background(), "hello")
	close(release)
	assert.Assert(t, parcel.Is(err, parcel.ErrTransportFailure))
	assert.ErrorContains(t, err, "parcel 0004")
	assert.ErrorContains(t, err, util.ErrTimeout.Error())
	assert.Assert(t, errors.Is(err, util.ErrTimeout))
}

func TestSendRejects(t *testing.T) {
	client, conn, _, _ := getTestClient(t, nil)
	_, err := client.Send(context.Background(), strings.Repeat("a", 16*10000))
	assert.Assert(t, parcel.Is(err, parcel.ErrPayloadTooLarge))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Send(ctx, "hello")
	assert.Equal(t, err, context.Canceled)
	assert.Equal(t, len(conn.sortedWrites()), 0)
}

func TestRead(t *testing.T) {
	client, conn, _, _ := getTestClient(t, nil)
	conn.readData[util.DataToReadCharUUID] = []byte(util.EncodeText("served document"))
	text, err := client.Read(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, text, "served document")

	conn.readData[util.DataToReadCharUUID] = []byte("%%%")
	_, err = client.Read(context.Background())
	assert.ErrorContains(t, err, "decode issue")

	delete(conn.readData, util.DataToReadCharUUID)
	_, err = client.Read(context.Background())
	assert.Assert(t, parcel.Is(err, parcel.ErrTransportFailure))
	assert.Assert(t, errors.Is(err, errRead))
}

func TestSyncTime(t *testing.T) {
	client, conn, l, _ := getTestClient(t, nil)
	_, err := client.UnixTS()
	assert.ErrorContains(t, err, "not syncronized")

	serverTS := util.UnixTS() + 3600
	conn.readData[util.TimeSyncUUID] = []byte(strconv.FormatInt(serverTS, 10))
	assert.NilError(t, client.SyncTime(context.Background()))
	assert.Equal(t, l.synced, 1)
	ts, err := client.UnixTS()
	assert.NilError(t, err)
	assert.Assert(t, ts-serverTS >= 0 && ts-serverTS <= 1)

	pkg, err := client.Send(context.Background(), "hi")
	assert.NilError(t, err)
	assert.Assert(t, pkg.Timestamp-serverTS >= 0 && pkg.Timestamp-serverTS <= 1)

	conn.readData[util.TimeSyncUUID] = []byte("noon")
	assert.ErrorContains(t, client.SyncTime(context.Background()), "time sync value")
}
