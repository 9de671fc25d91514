package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/moonshotcommons/timelock/events"
	"github.com/moonshotcommons/timelock/timelock"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Descriptor is the JSON representation of a timelock.Descriptor.
type Descriptor struct {
	Target    timelock.Address `json:"target"`
	Value     string           `json:"value,omitempty"`
	Func      string           `json:"func"`
	Data      string           `json:"data,omitempty"`
	Timestamp uint64           `json:"timestamp"`
}

// ToDescriptor parses the JSON fields.
func (d Descriptor) ToDescriptor() (timelock.Descriptor, error) {
	value, err := parseValue(d.Value)
	if err != nil {
		return timelock.Descriptor{}, err
	}
	data, err := parseHex(d.Data)
	if err != nil {
		return timelock.Descriptor{}, fmt.Errorf("invalid data: %w", err)
	}
	return timelock.Descriptor{
		Target:    d.Target,
		Value:     value,
		Func:      d.Func,
		Data:      data,
		Timestamp: d.Timestamp,
	}, nil
}

// NewDescriptor returns the JSON representation of d.
func NewDescriptor(d timelock.Descriptor) Descriptor {
	return Descriptor{
		Target:    d.Target,
		Value:     d.ValueOrZero().String(),
		Func:      d.Func,
		Data:      formatHex(d.Data),
		Timestamp: d.Timestamp,
	}
}

// DepositRequest is the body of POST /v1/deposit.
type DepositRequest struct {
	Value string `json:"value"`
}

// OwnerResponse is returned by GET /v1/owner and POST /v1/initialize.
type OwnerResponse struct {
	Owner       timelock.Address `json:"owner"`
	Initialized bool             `json:"initialized"`
}

// TxResponse is returned by the endpoints that act on a transaction.
type TxResponse struct {
	TxID timelock.TxID `json:"txId"`
}

// QueuedResponse is returned by GET /v1/queued/{id}.
type QueuedResponse struct {
	TxID   timelock.TxID `json:"txId"`
	Queued bool          `json:"queued"`
}

// Event is the JSON representation of a recorded notification.
type Event struct {
	Seq  uint64        `json:"seq"`
	Time time.Time     `json:"time"`
	Name string        `json:"name"`
	TxID timelock.TxID `json:"txId"`
	// Set for Queue and Execute events only
	Descriptor *Descriptor `json:"descriptor,omitempty"`
}

// EventsResponse is returned by GET /v1/events.
type EventsResponse struct {
	Events []Event `json:"events"`
	// Pass as "after" to get the following events
	Next uint64 `json:"next"`
}

func newEvent(rec events.Record) Event {
	out := Event{
		Seq:  rec.Seq,
		Time: rec.Time.UTC(),
		Name: rec.Event.EventName(),
		TxID: rec.Event.EventTxID(),
	}

	var d *timelock.Descriptor
	switch ev := rec.Event.(type) {
	case timelock.QueueEvent:
		d = &timelock.Descriptor{Target: ev.Target, Value: ev.Value, Func: ev.Func, Data: ev.Data, Timestamp: ev.Timestamp}
	case timelock.ExecuteEvent:
		d = &timelock.Descriptor{Target: ev.Target, Value: ev.Value, Func: ev.Func, Data: ev.Data, Timestamp: ev.Timestamp}
	}
	if d != nil {
		j := NewDescriptor(*d)
		out.Descriptor = &j
	}
	return out
}

// Values are decimal strings in [0, 2^256); empty means zero.
func parseValue(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("value must be a decimal integer")
	}
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return nil, errors.New("value must be between 0 and 2^256-1")
	}
	return v, nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(s)
}

func formatHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
