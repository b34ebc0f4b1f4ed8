package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// Order is immutable after creation except for Filled/Cancelled, which only ever go false -> true.
type Order struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"` // unix seconds
	Filled     bool           `json:"filled"`
	Cancelled  bool           `json:"cancelled"`
}

func (o *Order) Status() OrderStatus {
	switch {
	case o.Filled:
		return StatusFilled
	case o.Cancelled:
		return StatusCancelled
	default:
		return StatusOpen
	}
}

func (o *Order) clone() *Order {
	cp := *o
	cp.AmountGet = new(big.Int).Set(o.AmountGet)
	cp.AmountGive = new(big.Int).Set(o.AmountGive)
	return &cp
}

// OrderFilter selects orders; zero fields match everything.
type OrderFilter struct {
	User   *common.Address
	Status OrderStatus
}

func (f OrderFilter) match(o *Order) bool {
	if f.User != nil && o.User != *f.User {
		return false
	}
	if f.Status != "" && o.Status() != f.Status {
		return false
	}
	return true
}
