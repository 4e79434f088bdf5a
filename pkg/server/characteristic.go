package server

import (
	"context"
	"fmt"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// BLEReadCharacteristic is a struct representation of characteristic that can handle read operations from clients
type BLEReadCharacteristic struct {
	Uuid           string
	HandleRead     func(addr string, ctx context.Context) ([]byte, error)
	DoInBackground func()
}

// BLEWriteCharacteristic is a struct representation of characteristic that can handle write operations from clients
type BLEWriteCharacteristic struct {
	Uuid           string
	HandleWrite    func(addr string, data []byte)
	DoInBackground func()
}

type sessionKey string

func getAddrFromReq(req ble.Request) string {
	return util.NormalizeAddr(req.Conn().RemoteAddr().String())
}

func getSessionKey(uuid string, addr string) sessionKey {
	return sessionKey(fmt.Sprintf("session || %s || %s", uuid, addr))
}

func newWriteChar(char *BLEWriteCharacteristic) *ble.Characteristic {
	c := ble.NewCharacteristic(ble.MustParse(char.Uuid))
	c.HandleWrite(ble.WriteHandlerFunc(generateWriteHandler(char.HandleWrite)))
	return c
}

func newReadChar(server *BLEServer, char *BLEReadCharacteristic) *ble.Characteristic {
	c := ble.NewCharacteristic(ble.MustParse(char.Uuid))
	c.HandleRead(ble.ReadHandlerFunc(generateReadHandler(server, char.Uuid, char.HandleRead)))
	return c
}

// every write request carries exactly one raw parcel
func generateWriteHandler(onWrite func(addr string, data []byte)) func(req ble.Request, rsp ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		data := append([]byte{}, req.Data()...)
		onWrite(getAddrFromReq(req), data)
	}
}

type loadFn func(string, context.Context) ([]byte, error)

// long reads arrive as a first read followed by blob reads at growing offsets;
// the value loaded by the first read is kept on the connection until the last slice is served
func generateReadHandler(server *BLEServer, uuid string, load loadFn) func(req ble.Request, rsp ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		addr := getAddrFromReq(req)
		session := getSessionKey(uuid, addr)
		ctx := req.Conn().Context()
		value, cached := ctx.Value(session).([]byte)
		if req.Offset() == 0 || !cached {
			data, err := load(addr, ctx)
			if err != nil {
				server.listener.OnInternalError(errors.Wrap(err, "read char loader issue"))
				rsp.SetStatus(ble.ErrUnlikely)
				return
			}
			value = data
		}
		offset := req.Offset()
		if offset > len(value) {
			rsp.SetStatus(ble.ErrInvalidOffset)
			return
		}
		end := len(value)
		if c := rsp.Cap(); c > 0 && offset+c < end {
			end = offset + c
		}
		if end < len(value) {
			ctx = context.WithValue(ctx, session, value)
		} else {
			ctx = context.WithValue(ctx, session, nil)
		}
		req.Conn().SetContext(ctx)
		rsp.Write(value[offset:end])
	}
}

func constructReadChar(server *BLEServer, char *BLEReadCharacteristic) *ble.Characteristic {
	c := newReadChar(server, char)
	if char.DoInBackground != nil {
		go char.DoInBackground()
	}
	return c
}

func constructWriteChar(char *BLEWriteCharacteristic) *ble.Characteristic {
	c := newWriteChar(char)
	if char.DoInBackground != nil {
		go char.DoInBackground()
	}
	return c
}
