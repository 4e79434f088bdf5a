package internal

import (
	"bytes"
	"context"
	"sync"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// ErrDummyWrite is returned by DummyCoreClient for writes rejected through FailWrite
var ErrDummyWrite = errors.New("dummy write failure")

type DummyAdv struct {
	Address    ble.Addr
	Rssi       int
	NonService bool
}

type DummyAddr struct {
	Address string
}

func (addr DummyAddr) String() string { return addr.Address }

func (a DummyAdv) LocalName() string              { return "" }
func (a DummyAdv) ManufacturerData() []byte       { return nil }
func (a DummyAdv) ServiceData() []ble.ServiceData { return nil }
func (a DummyAdv) Services() []ble.UUID {
	if a.NonService {
		return nil
	}
	return GetTestServiceUUIDs()
}
func (a DummyAdv) OverflowService() []ble.UUID  { return nil }
func (a DummyAdv) TxPowerLevel() int            { return 0 }
func (a DummyAdv) Connectable() bool            { return true }
func (a DummyAdv) SolicitedService() []ble.UUID { return nil }
func (a DummyAdv) RSSI() int                    { return a.Rssi }
func (a DummyAdv) Addr() ble.Addr               { return a.Address }

func GetTestServiceUUIDs() []ble.UUID {
	return []ble.UUID{ble.MustParse(util.MainServiceUUID)}
}

// GetTestServices returns the main service carrying one characteristic per uuid
func GetTestServices(charUUIDs []string) []*ble.Service {
	chars := []*ble.Characteristic{}
	for _, uuid := range charUUIDs {
		chars = append(chars, ble.NewCharacteristic(ble.MustParse(uuid)))
	}
	return []*ble.Service{{UUID: ble.MustParse(util.MainServiceUUID), Characteristics: chars}}
}

// MockConn is a ble.Conn whose remote side is Addr
type MockConn struct {
	Addr string
	ctx  context.Context
}

func NewMockConn(addr string) *MockConn {
	return &MockConn{Addr: addr, ctx: context.Background()}
}

func (c *MockConn) Context() context.Context          { return c.ctx }
func (c *MockConn) SetContext(ctx context.Context)    { c.ctx = ctx }
func (c *MockConn) LocalAddr() ble.Addr               { return ble.NewAddr("00:00:00:00:00:00") }
func (c *MockConn) RemoteAddr() ble.Addr              { return ble.NewAddr(c.Addr) }
func (c *MockConn) RxMTU() int                        { return util.MTU }
func (c *MockConn) SetRxMTU(mtu int)                  {}
func (c *MockConn) TxMTU() int                        { return util.MTU }
func (c *MockConn) SetTxMTU(mtu int)                  {}
func (c *MockConn) Disconnected() <-chan struct{}     { return make(chan struct{}) }
func (c *MockConn) Read(p []byte) (n int, err error)  { return 0, nil }
func (c *MockConn) Write(p []byte) (n int, err error) { return len(p), nil }
func (c *MockConn) Close() error                      { return nil }

type MockRspWriter struct {
	buff   *bytes.Buffer
	status ble.ATTError
}

func NewMockRspWriter() *MockRspWriter {
	return &MockRspWriter{buff: bytes.NewBuffer(nil), status: ble.ErrSuccess}
}

func (rw *MockRspWriter) ReadAll() []byte               { return rw.buff.Bytes() }
func (rw *MockRspWriter) Write(b []byte) (int, error)   { return rw.buff.Write(b) }
func (rw *MockRspWriter) Status() ble.ATTError          { return rw.status }
func (rw *MockRspWriter) SetStatus(status ble.ATTError) { rw.status = status }
func (rw *MockRspWriter) Len() int                      { return rw.buff.Len() }
func (rw *MockRspWriter) Cap() int                      { return rw.buff.Cap() }

// DummyCoreClient is an in memory ble.Client recording every characteristic write
type DummyCoreClient struct {
	Address  string
	CharUUID []string
	ReadData map[string][]byte

	mutex        sync.Mutex
	writes       [][]byte
	requestedMTU int
	failWrite    func([]byte) bool
	disconnected chan struct{}
	once         sync.Once
}

func NewDummyCoreClient(addr string, charUUIDs ...string) *DummyCoreClient {
	return &DummyCoreClient{
		Address: addr, CharUUID: charUUIDs,
		ReadData: map[string][]byte{}, disconnected: make(chan struct{}),
	}
}

// FailWrite makes WriteCharacteristic fail for every value fn reports true for
func (c *DummyCoreClient) FailWrite(fn func([]byte) bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.failWrite = fn
}

// Writes returns a copy of every accepted write in the order it landed
func (c *DummyCoreClient) Writes() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([][]byte{}, c.writes...)
}

func (c *DummyCoreClient) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	data, ok := c.ReadData[util.UuidToStr(char.UUID)]
	if !ok {
		return nil, errors.Errorf("nothing to read from %s", util.UuidToStr(char.UUID))
	}
	return data, nil
}
func (c *DummyCoreClient) ReadLongCharacteristic(char *ble.Characteristic) ([]byte, error) {
	return c.ReadCharacteristic(char)
}
func (c *DummyCoreClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.failWrite != nil && c.failWrite(value) {
		return ErrDummyWrite
	}
	c.writes = append(c.writes, append([]byte{}, value...))
	return nil
}
func (c *DummyCoreClient) Addr() ble.Addr { return ble.NewAddr(c.Address) }
func (c *DummyCoreClient) Name() string   { return "dummy" }
func (c *DummyCoreClient) Profile() *ble.Profile {
	return &ble.Profile{Services: GetTestServices(c.CharUUID)}
}
func (c *DummyCoreClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	return c.Profile(), nil
}
func (c *DummyCoreClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	return GetTestServices(c.CharUUID), nil
}
func (c *DummyCoreClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	return nil, nil
}
func (c *DummyCoreClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	return s.Characteristics, nil
}
func (c *DummyCoreClient) DiscoverDescriptors(filter []ble.UUID, char *ble.Characteristic) ([]*ble.Descriptor, error) {
	return nil, nil
}
func (c *DummyCoreClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error)  { return nil, nil }
func (c *DummyCoreClient) WriteDescriptor(d *ble.Descriptor, v []byte) error { return nil }
func (c *DummyCoreClient) ReadRSSI() int                                     { return -60 }

// ExchangeMTU follows go-ble's contract: values outside DefaultMTU..MaxMTU are rejected
func (c *DummyCoreClient) ExchangeMTU(rxMTU int) (txMTU int, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.requestedMTU = rxMTU
	if rxMTU < ble.DefaultMTU || rxMTU > ble.MaxMTU {
		return 0, errors.Errorf("invalid argument: mtu %d", rxMTU)
	}
	return rxMTU, nil
}

// RequestedMTU returns the value passed to the last ExchangeMTU call
func (c *DummyCoreClient) RequestedMTU() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.requestedMTU
}

func (c *DummyCoreClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return nil
}
func (c *DummyCoreClient) Unsubscribe(char *ble.Characteristic, ind bool) error { return nil }
func (c *DummyCoreClient) ClearSubscriptions() error                            { return nil }
func (c *DummyCoreClient) CancelConnection() error {
	c.once.Do(func() { close(c.disconnected) })
	return nil
}
func (c *DummyCoreClient) Disconnected() <-chan struct{} { return c.disconnected }
func (c *DummyCoreClient) Conn() ble.Conn                { return NewMockConn(c.Address) }
