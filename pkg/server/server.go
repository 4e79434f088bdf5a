package server

import (
	"context"
	"strconv"
	"sync"

	. "github.com/Krajiyah/ble-parcel/pkg/ble"
	"github.com/Krajiyah/ble-parcel/pkg/config"
	. "github.com/Krajiyah/ble-parcel/pkg/models"
	"github.com/Krajiyah/ble-parcel/pkg/parcel"
	"github.com/Krajiyah/ble-parcel/pkg/store"
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TextProvider returns the document served to addr on the text read characteristic
type TextProvider func(addr string) (string, error)

type advertiser interface {
	Advertise(context.Context) error
	Close() error
}

// BLEServer is the receiving device: it reassembles parcels written by any number of peers
type BLEServer struct {
	name     string
	mutex    sync.Mutex
	status   BLEServerStatus
	receiver *parcel.Receiver
	text     TextProvider
	clock    util.Clock
	conn     advertiser
	listener BLEServerStatusListener
	logger   zerolog.Logger
}

// NewBLEServer takes over the local adapter and registers the parcel service
func NewBLEServer(cfg config.Config, archive store.Store, text TextProvider, listener BLEServerStatusListener, logger zerolog.Logger,
	moreReadChars []*BLEReadCharacteristic, moreWriteChars []*BLEWriteCharacteristic) (*BLEServer, error) {
	server := newBLEServer(cfg, archive, text, listener, logger)
	service := getService(server, moreReadChars, moreWriteChars)
	info := &ServiceInfo{Service: service, ServiceName: cfg.Name, UUID: ble.MustParse(util.MainServiceUUID)}
	conn, err := NewRealConnection(cfg.DialTimeout, cfg.MTU, server, info, logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not set up ble device")
	}
	server.conn = conn
	return server, nil
}

func newBLEServer(cfg config.Config, archive store.Store, text TextProvider, listener BLEServerStatusListener, logger zerolog.Logger) *BLEServer {
	if text == nil {
		text = func(string) (string, error) { return "", nil }
	}
	logger = logger.With().Str("component", "server").Str("name", cfg.Name).Logger()
	return &BLEServer{
		name:     cfg.Name,
		status:   Crashed,
		receiver: parcel.NewReceiver(cfg.OrderingMode(), cfg.Transform(), archive, listener, logger),
		text:     text,
		clock:    util.SystemClock{},
		listener: listener,
		logger:   logger,
	}
}

// Run advertises the service until ctx ends
func (server *BLEServer) Run(ctx context.Context) error {
	server.setStatus(Running, nil)
	err := server.conn.Advertise(ctx)
	if err != nil {
		server.setStatus(Crashed, err)
		return err
	}
	return nil
}

func (server *BLEServer) Close() error {
	return server.conn.Close()
}

// Receiver exposes per peer reassembly state
func (server *BLEServer) Receiver() *parcel.Receiver { return server.receiver }

func (server *BLEServer) Status() BLEServerStatus {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.status
}

func (server *BLEServer) setStatus(status BLEServerStatus, err error) {
	server.mutex.Lock()
	server.status = status
	server.mutex.Unlock()
	if err != nil {
		server.logger.Error().Err(err).Str("status", status.String()).Msg("status changed")
	} else {
		server.logger.Info().Str("status", status.String()).Msg("status changed")
	}
	server.listener.OnServerStatusChanged(status, err)
}

// OnConnected and OnDisconnected satisfy the connection listener; the receiving side only logs them
func (server *BLEServer) OnConnected(addr string) {
	server.logger.Debug().Str("peer", addr).Msg("connected")
}

func (server *BLEServer) OnDisconnected() {
	server.logger.Debug().Msg("disconnected")
}

func getService(server *BLEServer, moreReadChars []*BLEReadCharacteristic, moreWriteChars []*BLEWriteCharacteristic) *ble.Service {
	service := ble.NewService(ble.MustParse(util.MainServiceUUID))
	readChars := append([]*BLEReadCharacteristic{
		newTimeSyncChar(server),
		newTextChar(server),
	}, moreReadChars...)
	for _, char := range readChars {
		service.AddCharacteristic(constructReadChar(server, char))
	}
	writeChars := append([]*BLEWriteCharacteristic{
		newParcelChar(server),
	}, moreWriteChars...)
	for _, char := range writeChars {
		service.AddCharacteristic(constructWriteChar(char))
	}
	return service
}

func newParcelChar(server *BLEServer) *BLEWriteCharacteristic {
	return &BLEWriteCharacteristic{Uuid: util.DataToWriteCharUUID, HandleWrite: server.receiver.Feed}
}

func newTextChar(server *BLEServer) *BLEReadCharacteristic {
	return &BLEReadCharacteristic{Uuid: util.DataToReadCharUUID, HandleRead: func(addr string, _ context.Context) ([]byte, error) {
		text, err := server.text(addr)
		if err != nil {
			return nil, err
		}
		return []byte(util.EncodeText(text)), nil
	}}
}

func newTimeSyncChar(server *BLEServer) *BLEReadCharacteristic {
	return &BLEReadCharacteristic{Uuid: util.TimeSyncUUID, HandleRead: func(_ string, _ context.Context) ([]byte, error) {
		return []byte(strconv.FormatInt(server.clock.Now(), 10)), nil
	}}
}
