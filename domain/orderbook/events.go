package orderbook

import (
	"encoding/json"
	"fmt"
)

// Event is a book-state transition. Events are the unit of WAL
// persistence and of publication to the history projection.
type Event interface {
	eventTag() string
}

// OrderAdded records an order coming to rest in the book.
type OrderAdded struct {
	LO LimitOrder `json:"limitOrder"`
}

// OrderExecuted records a single fill between the incoming
// (submitted) order and the resident best counter order.
type OrderExecuted struct {
	Submitted LimitOrder `json:"submitted"`
	Counter   LimitOrder `json:"counter"`
	Amount    int64      `json:"amount"`
}

// OrderCanceled records an order leaving the book unfilled, or an
// unsettleable residual being dropped.
type OrderCanceled struct {
	LO LimitOrder `json:"limitOrder"`
}

func (OrderAdded) eventTag() string    { return "added" }
func (OrderExecuted) eventTag() string { return "executed" }
func (OrderCanceled) eventTag() string { return "canceled" }

// Price of an execution is always the resident counter's price.
func (e OrderExecuted) Price() int64 {
	return e.Counter.Order.Price
}

// SubmittedRemaining is what is left of the incoming order after
// this fill.
func (e OrderExecuted) SubmittedRemaining() int64 {
	return e.Submitted.Remaining - e.Amount
}

// CounterRemaining is what is left of the resident order after this
// fill.
func (e OrderExecuted) CounterRemaining() int64 {
	return e.Counter.Remaining - e.Amount
}

// ---- wire codec ----

type eventEnvelope struct {
	Tag  string          `json:"tag"`
	Body json.RawMessage `json:"body"`
}

// EncodeEvent serializes an event for the WAL.
func EncodeEvent(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Tag: e.eventTag(), Body: body})
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Tag {
	case "added":
		var e OrderAdded
		if err := json.Unmarshal(env.Body, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "executed":
		var e OrderExecuted
		if err := json.Unmarshal(env.Body, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "canceled":
		var e OrderCanceled
		if err := json.Unmarshal(env.Body, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event tag %q", env.Tag)
	}
}
