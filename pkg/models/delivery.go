package models

import "time"

// Delivery is the outcome of one completed transfer
type Delivery struct {
	ID          string
	Peer        string
	Text        string
	Timestamp   int64
	Verified    bool
	ParcelCount int
	ReceivedAt  time.Time
}
