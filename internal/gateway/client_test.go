package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/payhub-ph/payhub-backend/internal/models"
	"github.com/payhub-ph/payhub-backend/internal/sign"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:     srv.URL,
		MerchantID:  "TESTMERCHANT",
		Secret:      "testsecret",
		CallbackURL: "https://api.example.com/cb",
		ReturnURL:   "https://example.com/done",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, srv
}

func TestCreateDepositSignsAndParses(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathDeposit {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		params := map[string]string{}
		for k := range r.PostForm {
			params[k] = r.PostFormValue(k)
		}
		if params["bank_code"] != "gcash" || params["payment_type"] != "1" {
			t.Errorf("gcash-qr codes = %s/%s", params["bank_code"], params["payment_type"])
		}
		if params["amount"] != "500.00" {
			t.Errorf("amount = %s", params["amount"])
		}
		p := sign.Policy{Ordering: sign.FixedOrder, Keys: depositSignKeys, Case: sign.LowerHex}
		if !sign.Verify(params, "testsecret", params["sign"], p) {
			t.Error("deposit request signature does not verify")
		}
		w.Write([]byte(`{"status":"1","redirect_url":"https://pay.example/r/1","qrcode_url":"https://pay.example/q/1","order_id":"G123"}`))
	}))

	resp, err := c.CreateDeposit(context.Background(), models.ChannelGCashQR, DepositRequest{
		ReferenceID: "DEP001",
		Amount:      decimal.RequireFromString("500"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RedirectURL != "https://pay.example/r/1" || resp.GatewayOrderID != "G123" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCreateDepositUnsupportedChannel(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	_, err := c.CreateDeposit(context.Background(), models.ChannelManual, DepositRequest{ReferenceID: "DEP001", Amount: decimal.New(1, 0)})
	gerr, ok := err.(*Error)
	if !ok || gerr.Code != "unsupported_channel" {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateDepositRejectedByGateway(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"merchant suspended"}`))
	}))
	_, err := c.CreateDeposit(context.Background(), models.ChannelGCashQR, DepositRequest{ReferenceID: "DEP001", Amount: decimal.New(1, 0)})
	gerr, ok := err.(*Error)
	if !ok || gerr.Code != "rejected" || gerr.Message != "merchant suspended" {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateDepositSuccessWithoutRedirect(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","message":"ok"}`))
	}))
	_, err := c.CreateDeposit(context.Background(), models.ChannelGCashQR, DepositRequest{ReferenceID: "DEP001", Amount: decimal.New(1, 0)})
	gerr, ok := err.(*Error)
	if !ok || gerr.Code != "bad_response" {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	_, err := c.QueryStatus(context.Background(), "DEP001")
	gerr, ok := err.(*Error)
	if !ok || gerr.Code != "http_500" {
		t.Fatalf("err = %v", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1 (status errors are terminal)", n)
	}
}

func TestNonJSONBody(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	_, err := c.QueryStatus(context.Background(), "DEP001")
	gerr, ok := err.(*Error)
	if !ok || gerr.Code != "bad_response" {
		t.Fatalf("err = %v", err)
	}
}

func TestTransportErrorRetries(t *testing.T) {
	var attempts atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("hijack unsupported")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatal(err)
			}
			conn.Close() // abort mid-flight, client sees a transport error
			return
		}
		w.Write([]byte(`{"status":"5","message":"ok"}`))
	}))

	resp, err := c.QueryStatus(context.Background(), "DEP001")
	if err != nil {
		t.Fatal(err)
	}
	if resp.RawStatus != "5" {
		t.Fatalf("status = %s", resp.RawStatus)
	}
	if n := attempts.Load(); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
}

func TestQueryStatusKeepsRawPayload(t *testing.T) {
	const body = `{"status":"3","message":"insufficient funds","extra":"x"}`
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	resp, err := c.QueryStatus(context.Background(), "WIT002")
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.RawPayload) != body {
		t.Fatalf("raw payload = %s", resp.RawPayload)
	}
}

func TestCreateWithdrawalSignsAlphabetically(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathTransfer {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		params := map[string]string{}
		for k := range r.PostForm {
			params[k] = r.PostFormValue(k)
		}
		if !sign.Verify(params, "testsecret", params["sign"], withdrawPolicy) {
			t.Error("withdrawal signature does not verify alphabetically")
		}
		w.Write([]byte(`{"status":"1","transfer_id":"T777"}`))
	}))

	resp, err := c.CreateWithdrawal(context.Background(), models.ChannelGCashQR, WithdrawalRequest{
		ReferenceID: "WIT002",
		Amount:      decimal.RequireFromString("200"),
		AccountNo:   "09171234567",
		AccountName: "Juan Dela Cruz",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GatewayOrderID != "T777" {
		t.Fatalf("gateway order id = %s", resp.GatewayOrderID)
	}
}
