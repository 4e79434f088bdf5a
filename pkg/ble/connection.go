package ble

import (
	"context"
	"sync"
	"time"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by reads and writes issued before Dial or Connect succeeded
var ErrNotConnected = errors.New("not connected")

type connectionListener interface {
	OnConnected(string)
	OnDisconnected()
}

// Connection is the link a sender uses to reach one receiving device
type Connection interface {
	GetConnectedAddr() string
	Dial(context.Context, string) error
	Connect(context.Context, ble.AdvFilter) error
	Scan(context.Context, func(ble.Advertisement)) error
	ReadValue(string) ([]byte, error)
	WriteValue(uuid string, data []byte, noRsp bool) error
	Close() error
}

type RealConnection struct {
	connectedAddr         string
	timeout               time.Duration
	attMTU                int
	cln                   ble.Client
	methods               coreMethods
	characteristics       map[string]*ble.Characteristic
	connectionMutex       sync.Mutex
	resetDeviceMutex      sync.Mutex
	listener              connectionListener
	serviceInfo           *ServiceInfo
	logger                zerolog.Logger
	stopDelay             time.Duration
	setDefaultDeviceDelay time.Duration
}

// NewRealConnection takes over the default hci device; serviceInfo is nil on the sending side.
// parcelMTU is the largest parcel that will be written; the ATT MTU requested on connect is sized to carry it.
func NewRealConnection(timeout time.Duration, parcelMTU int, listener connectionListener, serviceInfo *ServiceInfo, logger zerolog.Logger) (*RealConnection, error) {
	return newRealConnection(timeout, parcelMTU, listener, &realCoreMethods{}, serviceInfo, logger)
}

func newRealConnection(timeout time.Duration, parcelMTU int, listener connectionListener, methods coreMethods, serviceInfo *ServiceInfo, logger zerolog.Logger) (*RealConnection, error) {
	conn := &RealConnection{
		timeout: timeout, attMTU: util.ATTMTU(parcelMTU), methods: methods,
		characteristics: map[string]*ble.Characteristic{},
		listener:        listener, serviceInfo: serviceInfo, logger: logger,
		stopDelay: stopDelay, setDefaultDeviceDelay: setDefaultDeviceDelay,
	}
	if err := conn.resetDevice(); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *RealConnection) GetConnectedAddr() string {
	c.connectionMutex.Lock()
	defer c.connectionMutex.Unlock()
	return c.connectedAddr
}

func (c *RealConnection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Dial connects to addr and discovers the main service
func (c *RealConnection) Dial(ctx context.Context, addr string) error {
	return c.connectWith(func() (ble.Client, string, error) {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		cln, err := c.methods.Dial(ctx, ble.NewAddr(addr))
		return cln, util.NormalizeAddr(addr), err
	})
}

// Connect dials the first advertiser accepted by filter
func (c *RealConnection) Connect(ctx context.Context, filter ble.AdvFilter) error {
	return c.connectWith(func() (ble.Client, string, error) {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		var addr string
		cln, err := c.methods.Connect(ctx, func(a ble.Advertisement) bool {
			if filter(a) {
				addr = util.NormalizeAddr(a.Addr().String())
				return true
			}
			return false
		})
		return cln, addr, err
	})
}

func (c *RealConnection) connectWith(fn func() (ble.Client, string, error)) error {
	c.connectionMutex.Lock()
	defer c.connectionMutex.Unlock()
	c.dropClient()
	cln, addr, err := fn()
	if err != nil {
		if cln != nil {
			cln.CancelConnection()
		}
		return errors.Wrap(err, "connect issue")
	}
	if err := c.discover(cln); err != nil {
		cln.CancelConnection()
		return err
	}
	c.cln = cln
	c.connectedAddr = addr
	go func() {
		<-cln.Disconnected()
		c.logger.Debug().Str("addr", addr).Msg("disconnected")
		c.listener.OnDisconnected()
	}()
	c.listener.OnConnected(addr)
	return nil
}

func (c *RealConnection) discover(cln ble.Client) error {
	return util.CatchErrs(func() error {
		txMTU, err := cln.ExchangeMTU(c.attMTU)
		if err != nil {
			return errors.Wrap(err, "ExchangeMTU issue")
		}
		if txMTU < c.attMTU {
			c.logger.Warn().Int("requested", c.attMTU).Int("negotiated", txMTU).Msg("peer mtu smaller than parcel size")
		}
		p, err := cln.DiscoverProfile(true)
		if err != nil {
			return errors.Wrap(err, "DiscoverProfile issue")
		}
		for _, s := range p.Services {
			if util.UuidEqualStr(s.UUID, util.MainServiceUUID) {
				c.characteristics = map[string]*ble.Characteristic{}
				for _, char := range s.Characteristics {
					c.characteristics[util.UuidToStr(char.UUID)] = char
				}
				return nil
			}
		}
		return errors.New("Could not find MainServiceUUID in broadcasted services")
	})
}

func (c *RealConnection) dropClient() {
	if c.cln == nil {
		return
	}
	if err := c.cln.CancelConnection(); err != nil {
		c.logger.Debug().Err(err).Msg("cancel connection issue")
	}
	c.cln = nil
	c.connectedAddr = ""
}

// Scan reports advertisements carrying the main service until ctx ends
func (c *RealConnection) Scan(ctx context.Context, handle func(ble.Advertisement)) error {
	err := c.methods.Scan(ctx, handle, HasMainService)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close cancels the current connection, if any
func (c *RealConnection) Close() error {
	c.connectionMutex.Lock()
	defer c.connectionMutex.Unlock()
	c.dropClient()
	return nil
}

// HasMainService reports whether a advertises the parcel service
func HasMainService(a ble.Advertisement) bool {
	for _, service := range a.Services() {
		if util.UuidEqualStr(service, util.MainServiceUUID) {
			return true
		}
	}
	return false
}
