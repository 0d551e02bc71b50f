package gateway

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	ReferenceID string
	Amount      decimal.Decimal
	BankCode    string
	PaymentType string
}

type DepositResponse struct {
	RawStatus      string `json:"status"`
	Message        string `json:"message"`
	RedirectURL    string `json:"redirect_url"`
	QRCodeURL      string `json:"qrcode_url"`
	GatewayOrderID string `json:"order_id"`
}

type WithdrawalRequest struct {
	ReferenceID string
	Amount      decimal.Decimal
	AccountNo   string
	AccountName string
}

type WithdrawalResponse struct {
	RawStatus      string `json:"status"`
	Message        string `json:"message"`
	GatewayOrderID string `json:"transfer_id"`
}

type QueryStatusResponse struct {
	RawStatus  string `json:"status"`
	Message    string `json:"message"`
	RawPayload []byte `json:"-"`
}

// CallbackPayload is the asynchronous notification body. The gateway
// posts it form-encoded; some channels re-deliver as JSON.
type CallbackPayload struct {
	Merchant    string `json:"merchant"`
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Sign        string `json:"sign"`
	raw         map[string]string
}

// Params returns the flat field map used for signature verification.
func (p *CallbackPayload) Params() map[string]string {
	if p.raw != nil {
		return p.raw
	}
	return map[string]string{
		"merchant": p.Merchant,
		"order_id": p.OrderID,
		"amount":   p.Amount,
		"status":   p.Status,
		"sign":     p.Sign,
	}
}

// ParseCallback decodes a callback request, form-encoded or JSON.
func ParseCallback(r *http.Request) (*CallbackPayload, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var p CallbackPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return nil, err
		}
		return &p, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	p := &CallbackPayload{
		Merchant: r.PostFormValue("merchant"),
		OrderID:  r.PostFormValue("order_id"),
		Amount:   r.PostFormValue("amount"),
		Status:   r.PostFormValue("status"),
		Sign:     r.PostFormValue("sign"),
		raw:      map[string]string{},
	}
	// keep every posted field: the gateway signs fields we do not model
	for k := range r.PostForm {
		p.raw[k] = r.PostFormValue(k)
	}
	return p, nil
}
