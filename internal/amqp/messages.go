package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage announces that an owner's ledger changed inside a
// given month. It deliberately carries no amounts: the reconcile worker
// rebuilds the month's snapshot from the ledger, so a lost or duplicated
// message can only delay freshness, never corrupt it.
type LedgerEventMessage struct {
	OwnerID   string    `json:"owner_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(ownerID string, year, month int) *LedgerEventMessage {
	return &LedgerEventMessage{
		OwnerID:   ownerID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
