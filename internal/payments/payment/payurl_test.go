package payment

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		lamports int64
		want     string
	}{
		{0, "0"},
		{1, "0.000000001"},
		{1_000_000_000, "1"},
		{1_500_000_000, "1.5"},
		{2_000_000_001, "2.000000001"},
		{123_456_789, "0.123456789"},
		{10_000_000_000, "10"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatAmount(tc.lamports), "%d lamports", tc.lamports)
	}
}

func TestPayURL(t *testing.T) {
	raw := PayURL("recipientWallet", 1_500_000_000, "ref-123", "order-42")

	require.True(t, strings.HasPrefix(raw, "solana:recipientWallet?"))

	query, err := url.ParseQuery(strings.SplitN(raw, "?", 2)[1])
	require.NoError(t, err)

	assert.Equal(t, "1.5", query.Get("amount"))
	assert.Equal(t, "ref-123", query.Get("reference"))
	assert.Equal(t, "Order #order-42", query.Get("label"))
	assert.Equal(t, "Payment for order #order-42", query.Get("message"))
}
