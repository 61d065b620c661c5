package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusAwaitingShippingFee, true},
		{StatusAwaitingShippingFee, StatusAwaitingPayment, true},
		{StatusAwaitingPayment, StatusPaid, true},
		{StatusPaid, StatusShipped, true},
		{StatusShipped, StatusCompleted, true},

		// No skipping forward.
		{StatusProcessing, StatusAwaitingPayment, false},
		{StatusProcessing, StatusPaid, false},
		{StatusAwaitingPayment, StatusShipped, false},

		// No moving backward.
		{StatusPaid, StatusAwaitingPayment, false},
		{StatusShipped, StatusPaid, false},

		// Cancellation only before payment.
		{StatusProcessing, StatusCanceled, true},
		{StatusAwaitingShippingFee, StatusCanceled, true},
		{StatusAwaitingPayment, StatusCanceled, true},
		{StatusPaid, StatusCanceled, false},
		{StatusShipped, StatusCanceled, false},
		{StatusCompleted, StatusCanceled, false},

		// Canceled is terminal.
		{StatusCanceled, StatusProcessing, false},
		{StatusCanceled, StatusCanceled, false},

		{Status("BOGUS"), StatusPaid, false},
		{StatusProcessing, Status("BOGUS"), false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPartitionBySettlement(t *testing.T) {
	lines := []cartLine{
		{ProductID: "p1", Name: "Widget", Price: 100, Quantity: 2, WalletAddress: "walletA"},
		{ProductID: "p2", Name: "Gadget", Price: 250, Quantity: 1, WalletAddress: "walletB"},
		{ProductID: "p3", Name: "Sprocket", Price: 50, Quantity: 4, WalletAddress: "walletA"},
	}

	groups := partitionBySettlement(lines)

	assert.Len(t, groups, 2)

	// First-seen wallet order is preserved.
	assert.Equal(t, "walletA", groups[0].WalletAddress)
	assert.Equal(t, "walletB", groups[1].WalletAddress)

	assert.Len(t, groups[0].Lines, 2)
	assert.Equal(t, int64(100*2+50*4), groups[0].Total)

	assert.Len(t, groups[1].Lines, 1)
	assert.Equal(t, int64(250), groups[1].Total)
}

func TestPartitionSingleWallet(t *testing.T) {
	lines := []cartLine{
		{ProductID: "p1", Price: 100, Quantity: 1, WalletAddress: "walletA"},
		{ProductID: "p2", Price: 200, Quantity: 3, WalletAddress: "walletA"},
	}

	groups := partitionBySettlement(lines)

	assert.Len(t, groups, 1)
	assert.Equal(t, int64(700), groups[0].Total)
}

func TestPartitionEmpty(t *testing.T) {
	assert.Empty(t, partitionBySettlement(nil))
}
