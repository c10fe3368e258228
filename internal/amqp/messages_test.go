package amqp

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshotPublishedMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		snapshotID int64
		storeID    int64
	}{
		{name: "typical ids", snapshotID: 42, storeID: 3},
		{name: "first snapshot", snapshotID: 1, storeID: 1},
		{name: "large ids", snapshotID: 9_223_372_036_854_775_807, storeID: 100_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewSnapshotPublishedMessage(tt.snapshotID, tt.storeID)
			if msg.Timestamp.IsZero() {
				t.Fatal("timestamp not set")
			}

			data, err := msg.ToJSON()
			if err != nil {
				t.Fatalf("ToJSON: %v", err)
			}

			back, err := SnapshotPublishedMessageFromJSON(data)
			if err != nil {
				t.Fatalf("FromJSON: %v", err)
			}
			if back.SnapshotID != tt.snapshotID {
				t.Errorf("SnapshotID = %d, want %d", back.SnapshotID, tt.snapshotID)
			}
			if back.StoreID != tt.storeID {
				t.Errorf("StoreID = %d, want %d", back.StoreID, tt.storeID)
			}
			if !back.Timestamp.Equal(msg.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", back.Timestamp, msg.Timestamp)
			}
		})
	}
}

func TestSnapshotPublishedMessageWireFormat(t *testing.T) {
	msg := &SnapshotPublishedMessage{
		SnapshotID: 7,
		StoreID:    2,
		Timestamp:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"snapshot_id", "store_id", "timestamp"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("wire format missing %q field: %s", key, data)
		}
	}
}

func TestSnapshotPublishedMessageFromInvalidJSON(t *testing.T) {
	if _, err := SnapshotPublishedMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
