package order

import (
	"time"
)

type Status string

const (
	StatusProcessing          Status = "PROCESSING"
	StatusAwaitingShippingFee Status = "AWAITING_SHIPPING_FEE"
	StatusAwaitingPayment     Status = "AWAITING_PAYMENT"
	StatusPaid                Status = "PAID"
	StatusShipped             Status = "SHIPPED"
	StatusCompleted           Status = "COMPLETED"
	StatusCanceled            Status = "CANCELED"
)

// forward is the linear fulfillment sequence. Operators move orders one
// step at a time; the payment saga is the only actor allowed to jump
// ahead (see Service.MarkPaid).
var forward = []Status{
	StatusProcessing,
	StatusAwaitingShippingFee,
	StatusAwaitingPayment,
	StatusPaid,
	StatusShipped,
	StatusCompleted,
}

func rank(s Status) int {
	for i, v := range forward {
		if v == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether an operator may move an order from one
// status to the next. Forward moves advance exactly one step;
// cancellation is allowed from any state before PAID and is terminal.
func CanTransition(from, to Status) bool {
	if from == StatusCanceled {
		return false
	}
	if to == StatusCanceled {
		return rank(from) >= 0 && rank(from) < rank(StatusPaid)
	}
	fromRank, toRank := rank(from), rank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	return toRank == fromRank+1
}

// OrderItem is a snapshot of a cart line at placement time. Price is
// copied, not referenced, so later catalog price changes cannot alter a
// placed order.
type OrderItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	Status        Status      `json:"status"`
	Total         int64       `json:"total"`
	ShippingFee   int64       `json:"shippingFee"`
	WalletAddress string      `json:"walletAddress"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// cartLine is one cart row as loaded inside the placement transaction.
type cartLine struct {
	ProductID     string
	Name          string
	Price         int64
	Quantity      int
	WalletAddress string
}

type settlementGroup struct {
	WalletAddress string
	Lines         []cartLine
	Total         int64
}

// partitionBySettlement splits cart lines by settlement wallet, one
// group per distinct address in first-seen order. Each group becomes its
// own order so a single payment charges a single recipient.
func partitionBySettlement(lines []cartLine) []settlementGroup {
	index := make(map[string]int, len(lines))
	var groups []settlementGroup

	for _, line := range lines {
		i, ok := index[line.WalletAddress]
		if !ok {
			i = len(groups)
			index[line.WalletAddress] = i
			groups = append(groups, settlementGroup{WalletAddress: line.WalletAddress})
		}
		groups[i].Lines = append(groups[i].Lines, line)
		groups[i].Total += line.Price * int64(line.Quantity)
	}

	return groups
}
