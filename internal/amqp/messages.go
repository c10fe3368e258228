package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotPublishedMessage announces that a snapshot reached the completed
// state. It carries only identifiers, the worker fetches the full snapshot
// from the database.
type SnapshotPublishedMessage struct {
	SnapshotID int64     `json:"snapshot_id"`
	StoreID    int64     `json:"store_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewSnapshotPublishedMessage creates a publish announcement for a snapshot
func NewSnapshotPublishedMessage(snapshotID, storeID int64) *SnapshotPublishedMessage {
	return &SnapshotPublishedMessage{
		SnapshotID: snapshotID,
		StoreID:    storeID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotPublishedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotPublishedMessageFromJSON creates a message from JSON bytes
func SnapshotPublishedMessageFromJSON(data []byte) (*SnapshotPublishedMessage, error) {
	var msg SnapshotPublishedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
