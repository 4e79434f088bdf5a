package ble

import (
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

func (c *RealConnection) getCharacteristic(uuid string) (ble.Client, *ble.Characteristic, error) {
	c.connectionMutex.Lock()
	defer c.connectionMutex.Unlock()
	if c.cln == nil {
		return nil, nil, ErrNotConnected
	}
	if char, ok := c.characteristics[util.NormalizeAddr(uuid)]; ok {
		return c.cln, char, nil
	}
	return nil, nil, errors.Errorf("no such uuid (%s) in characteristics advertised from server", uuid)
}

// ReadValue reads a characteristic of the connected device
func (c *RealConnection) ReadValue(uuid string) ([]byte, error) {
	cln, char, err := c.getCharacteristic(uuid)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = util.CatchErrs(func() error {
		var e error
		data, e = cln.ReadLongCharacteristic(char)
		return e
	})
	if err != nil {
		return nil, errors.Wrap(err, "ReadLongCharacteristic issue")
	}
	return data, nil
}

// WriteValue writes one value; noRsp selects a write command over a write request
func (c *RealConnection) WriteValue(uuid string, data []byte, noRsp bool) error {
	if len(data) == 0 {
		return errors.New("empty data to write")
	}
	cln, char, err := c.getCharacteristic(uuid)
	if err != nil {
		return err
	}
	err = util.CatchErrs(func() error {
		return cln.WriteCharacteristic(char, data, noRsp)
	})
	return errors.Wrap(err, "WriteCharacteristic issue")
}
