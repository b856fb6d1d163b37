package transaction

import (
	"time"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// EventType is one stage of a transaction lifecycle
type EventType string

const (
	EventSigned        EventType = "signed"
	EventSend          EventType = "send"
	EventExtrinsicHash EventType = "extrinsicHash"
	EventInBlock       EventType = "inBlock"
	EventSuccess       EventType = "success"
	EventError         EventType = "error"
	EventTimeout       EventType = "timeout"
)

// stage orders the events, a transaction never goes back to an earlier stage.
// Timeout has no stage, it can fire once at any point before the terminal event.
var stage = map[EventType]int{
	EventSigned:        1,
	EventSend:          2,
	EventExtrinsicHash: 3,
	EventInBlock:       4,
	EventSuccess:       5,
	EventError:         5,
}

func (t EventType) terminal() bool {
	return t == EventSuccess || t == EventError
}

// Event is emitted on every lifecycle change of a transaction
type Event struct {
	Type          EventType                  `json:"type"`
	TransactionID string                     `json:"transaction_id"`
	ExtrinsicHash string                     `json:"extrinsic_hash,omitempty"`
	Errors        []*models.TransactionError `json:"errors,omitempty"`
	Time          time.Time                  `json:"time"`
}

// lifecycle guards the event order of one transaction
type lifecycle struct {
	last     int
	hash     string
	timedOut bool
	terminal bool
}

// accept reports whether ev may be emitted after the events seen so far.
// Nothing follows a terminal event and success needs a known extrinsic hash.
func (l *lifecycle) accept(ev Event) bool {
	if l.terminal {
		return false
	}
	if ev.Type == EventTimeout {
		if l.timedOut {
			return false
		}
		l.timedOut = true
		return true
	}
	s := stage[ev.Type]
	if s <= l.last {
		return false
	}
	switch ev.Type {
	case EventExtrinsicHash:
		if ev.ExtrinsicHash == "" {
			return false
		}
		l.hash = ev.ExtrinsicHash
	case EventSuccess:
		if l.hash == "" {
			return false
		}
	}
	l.last = s
	l.terminal = ev.Type.terminal()
	return true
}
