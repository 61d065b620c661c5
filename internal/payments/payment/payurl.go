package payment

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const lamportsPerSOL = 1_000_000_000

// PayURL renders a solana: transfer-request URL for a charge. The wallet
// scanning it pays amount to recipient and tags the transaction with the
// reference so verification can find it.
func PayURL(recipient string, amount int64, reference, orderID string) string {
	v := url.Values{}
	v.Set("amount", FormatAmount(amount))
	v.Set("reference", reference)
	v.Set("label", "Order #"+orderID)
	v.Set("message", "Payment for order #"+orderID)
	return "solana:" + recipient + "?" + v.Encode()
}

// FormatAmount renders lamports as a decimal SOL string without
// floating-point rounding.
func FormatAmount(lamports int64) string {
	whole := lamports / lamportsPerSOL
	frac := lamports % lamportsPerSOL
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	return fmt.Sprintf("%d.%s", whole, strings.TrimRight(fmt.Sprintf("%09d", frac), "0"))
}
