package models

// TransferListener receives completed transfers and parcel level problems
type TransferListener interface {
	// OnDelivery fires once per completed transfer; unverified payloads arrive with Verified false
	OnDelivery(Delivery)
	OnParcelError(peer string, err error)
}

type BLEClientListener interface {
	OnConnected(string)
	OnDisconnected()
	OnTimeSync()
	OnInternalError(error)
}

type BLEServerStatusListener interface {
	TransferListener
	OnServerStatusChanged(BLEServerStatus, error)
	OnInternalError(error)
}

// TransferListenerFuncs adapts plain funcs to TransferListener; nil funcs are skipped
type TransferListenerFuncs struct {
	Delivery  func(Delivery)
	ParcelErr func(string, error)
}

func (f TransferListenerFuncs) OnDelivery(d Delivery) {
	if f.Delivery != nil {
		f.Delivery(d)
	}
}

func (f TransferListenerFuncs) OnParcelError(peer string, err error) {
	if f.ParcelErr != nil {
		f.ParcelErr(peer, err)
	}
}
