package client

// BLEClientStatus is an enum for all possible status conditions for ble client
type BLEClientStatus int

const (
	// Connected indicates ble client is healthy, and connected to server
	Connected BLEClientStatus = iota
	// Disconnected indicates ble client is not (or no longer) connected to server
	Disconnected
)

func (s BLEClientStatus) String() string {
	return []string{"Connected", "Disconnected"}[s]
}
