package gateway

import (
	"github.com/payhub-ph/payhub-backend/internal/models"
	"github.com/payhub-ph/payhub-backend/internal/sign"
)

// channelSpec carries the gateway codes and the signing policy one live
// channel requires. The gateway's documentation mandates the fixed key
// order below for deposit creation; other endpoints have been observed
// to expect alphabetical ordering, so the policy lives here per channel
// instead of inside the codec.
type channelSpec struct {
	BankCode    string
	PaymentType string
	Deposit     sign.Policy
}

var depositSignKeys = []string{
	"merchant", "payment_type", "amount", "order_id", "bank_code", "callback_url", "return_url",
}

var channels = map[models.PaymentChannel]channelSpec{
	models.ChannelGCashQR: {
		BankCode:    "gcash",
		PaymentType: "1",
		Deposit:     sign.Policy{Ordering: sign.FixedOrder, Keys: depositSignKeys, Case: sign.LowerHex},
	},
	models.ChannelGCashH5: {
		BankCode:    "mya",
		PaymentType: "7",
		Deposit:     sign.Policy{Ordering: sign.FixedOrder, Keys: depositSignKeys, Case: sign.LowerHex},
	},
	models.ChannelMaya: {
		BankCode:    "PMP",
		PaymentType: "3",
		Deposit:     sign.Policy{Ordering: sign.FixedOrder, Keys: depositSignKeys, Case: sign.LowerHex},
	},
}

// withdrawPolicy and queryPolicy apply to payout creation and status
// queries; both endpoints sign alphabetically with lower hex.
var (
	withdrawPolicy = sign.Policy{Ordering: sign.Alphabetical, Case: sign.LowerHex}
	queryPolicy    = sign.Policy{Ordering: sign.Alphabetical, Case: sign.LowerHex}

	// CallbackPolicy verifies inbound notifications.
	CallbackPolicy = sign.Policy{Ordering: sign.Alphabetical, Case: sign.LowerHex}
)

// ChannelCodes exposes the bank/payment-type pair for a channel.
func ChannelCodes(c models.PaymentChannel) (bankCode, paymentType string, ok bool) {
	s, ok := channels[c]
	return s.BankCode, s.PaymentType, ok
}
