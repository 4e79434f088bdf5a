package client

import (
	"context"
	"strconv"
	"sync"
	"time"

	. "github.com/Krajiyah/ble-parcel/pkg/ble"
	"github.com/Krajiyah/ble-parcel/pkg/config"
	. "github.com/Krajiyah/ble-parcel/pkg/models"
	"github.com/Krajiyah/ble-parcel/pkg/parcel"
	"github.com/Krajiyah/ble-parcel/pkg/store"
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type Client interface {
	Connect(context.Context) error
	Send(context.Context, string) (*parcel.Package, error)
	Read(context.Context) (string, error)
	SyncTime(context.Context) error
	UnixTS() (int64, error)
	Status() BLEClientStatus
}

// BLEClient is the sending device
type BLEClient struct {
	deviceID     string
	serverAddr   string
	writeTimeout time.Duration
	mutex        sync.Mutex
	status       BLEClientStatus
	parcelizer   *parcel.Parcelizer
	clock        util.Clock
	timeSync     *util.TimeSync
	archive      store.Store
	connection   Connection
	listener     BLEClientListener
	logger       zerolog.Logger
}

// NewBLEClient takes over the local adapter; archive may be nil
func NewBLEClient(cfg config.Config, archive store.Store, listener BLEClientListener, logger zerolog.Logger) (*BLEClient, error) {
	client, err := newBLEClient(cfg, archive, listener, logger)
	if err != nil {
		return nil, err
	}
	conn, err := NewRealConnection(cfg.DialTimeout, cfg.MTU, client, nil, client.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not set up ble device")
	}
	client.connection = conn
	return client, nil
}

// NewBLEClientWithSharedConn builds a client over an existing connection
func NewBLEClientWithSharedConn(cfg config.Config, archive store.Store, listener BLEClientListener, logger zerolog.Logger, conn Connection) (*BLEClient, error) {
	client, err := newBLEClient(cfg, archive, listener, logger)
	if err != nil {
		return nil, err
	}
	client.connection = conn
	return client, nil
}

func newBLEClient(cfg config.Config, archive store.Store, listener BLEClientListener, logger zerolog.Logger) (*BLEClient, error) {
	pz, err := parcel.NewParcelizer(cfg.MTU, cfg.Transform())
	if err != nil {
		return nil, err
	}
	return &BLEClient{
		deviceID:     cfg.DeviceID,
		serverAddr:   cfg.ServerAddr,
		writeTimeout: cfg.WriteTimeout,
		status:       Disconnected,
		parcelizer:   pz,
		clock:        util.SystemClock{},
		archive:      archive,
		listener:     listener,
		logger:       logger.With().Str("component", "client").Str("device", cfg.DeviceID).Logger(),
	}, nil
}

func (client *BLEClient) Status() BLEClientStatus {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	return client.status
}

func (client *BLEClient) setStatus(s BLEClientStatus) {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	client.status = s
}

func (client *BLEClient) OnConnected(addr string) {
	client.setStatus(Connected)
	client.logger.Info().Str("server", addr).Msg("connected")
	client.listener.OnConnected(addr)
}

func (client *BLEClient) OnDisconnected() {
	client.setStatus(Disconnected)
	client.logger.Info().Msg("disconnected")
	client.listener.OnDisconnected()
}

// Connect dials the configured server, or the first device advertising the parcel service when none is configured
func (client *BLEClient) Connect(ctx context.Context) error {
	if client.serverAddr == "" {
		return errors.Wrap(client.connection.Connect(ctx, HasMainService), "could not find a server")
	}
	err := client.connection.Dial(ctx, client.serverAddr)
	return errors.Wrapf(err, "could not connect to server %s", client.serverAddr)
}

func (client *BLEClient) now() int64 {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	return client.clock.Now()
}

// Send parcelizes text and writes every parcel concurrently with no ordering guarantee and no retry.
// Each failed write is reported to the listener; the returned error aggregates all of them.
func (client *BLEClient) Send(ctx context.Context, text string) (*parcel.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pkg, err := client.parcelizer.Package(text, client.now())
	if err != nil {
		return nil, err
	}
	if client.archive != nil {
		if err := client.archive.StorePackage(client.deviceID, pkg.Timestamp, pkg.Encoded()); err != nil {
			client.logger.Error().Err(err).Msg("could not archive package")
		}
	}
	var g errgroup.Group
	var errsMutex sync.Mutex
	var errs error
	for _, p := range pkg.Parcels {
		g.Go(func() error {
			err := client.writeParcel(p)
			if err == nil {
				return nil
			}
			client.logger.Warn().Str("parcel", parcel.FormatSequence(p.Seq)).Err(err).Msg("parcel write failed")
			client.listener.OnInternalError(err)
			errsMutex.Lock()
			errs = multierr.Append(errs, err)
			errsMutex.Unlock()
			return err
		})
	}
	_ = g.Wait()
	client.logger.Debug().Int("parcels", len(pkg.Parcels)).Int64("timestamp", pkg.Timestamp).Msg("package sent")
	return pkg, errs
}

func (client *BLEClient) writeParcel(p parcel.Parcel) error {
	err := util.Timeout(func() error {
		return client.connection.WriteValue(util.DataToWriteCharUUID, p.Bytes(), true)
	}, client.writeTimeout)
	if err != nil {
		return parcel.NewTransportError("parcel "+parcel.FormatSequence(p.Seq), err)
	}
	return nil
}

func (client *BLEClient) readValue(ctx context.Context, uuid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := util.Timeout(func() error {
		var e error
		data, e = client.connection.ReadValue(uuid)
		return e
	}, client.writeTimeout)
	if err != nil {
		return nil, parcel.NewTransportError("read "+uuid, err)
	}
	return data, nil
}

// Read fetches the text the server serves on its read characteristic
func (client *BLEClient) Read(ctx context.Context) (string, error) {
	data, err := client.readValue(ctx, util.DataToReadCharUUID)
	if err != nil {
		return "", err
	}
	return util.DecodeText(string(data))
}

// SyncTime aligns header timestamps with the server clock
func (client *BLEClient) SyncTime(ctx context.Context) error {
	b, err := client.readValue(ctx, util.TimeSyncUUID)
	if err != nil {
		return err
	}
	initTS, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.Wrap(err, "time sync value")
	}
	timeSync := util.NewTimeSync(initTS)
	client.mutex.Lock()
	client.timeSync = timeSync
	client.clock = timeSync
	client.mutex.Unlock()
	client.logger.Debug().Int64("offset", timeSync.Offset()).Msg("time synced")
	client.listener.OnTimeSync()
	return nil
}

func (client *BLEClient) UnixTS() (int64, error) {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.timeSync == nil {
		return 0, errors.New("Time not syncronized yet")
	}
	return client.timeSync.Now(), nil
}

func (client *BLEClient) Close() error {
	return client.connection.Close()
}
