package ble

import (
	"context"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

const (
	stopDelay             = 500 * time.Millisecond
	setDefaultDeviceDelay = 250 * time.Millisecond
)

// ServiceInfo describes the gatt service a receiving device advertises
type ServiceInfo struct {
	Service     *ble.Service
	ServiceName string
	UUID        ble.UUID
}

func (c *RealConnection) resetDevice() error {
	c.resetDeviceMutex.Lock()
	defer c.resetDeviceMutex.Unlock()
	if err := c.methods.Stop(); err != nil {
		c.logger.Debug().Err(err).Msg("stop issue")
	}
	time.Sleep(c.stopDelay)
	if err := c.methods.SetDefaultDevice(c.timeout); err != nil {
		return errors.Wrap(err, "SetDefaultDevice issue")
	}
	time.Sleep(c.setDefaultDeviceDelay)
	if c.serviceInfo == nil {
		return nil
	}
	if err := c.methods.AddService(c.serviceInfo.Service); err != nil {
		return errors.Wrap(err, "AddService issue")
	}
	return nil
}

// Advertise blocks advertising the service until ctx ends
func (c *RealConnection) Advertise(ctx context.Context) error {
	if c.serviceInfo == nil {
		return errors.New("no service to advertise")
	}
	err := c.methods.AdvertiseNameAndServices(ctx, c.serviceInfo.ServiceName, c.serviceInfo.UUID)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return errors.Wrap(err, "AdvertiseNameAndServices issue")
}
