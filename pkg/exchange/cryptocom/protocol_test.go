package cryptocom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
)

func TestProtocol_BaseURL(t *testing.T) {
	p := NewProtocol()
	assert.Equal(t, ProductionURL, p.BaseURL(false))
	assert.Equal(t, SandboxURL, p.BaseURL(true))
	assert.Equal(t, "cryptocom", p.Name())
}

func TestBuildRequest_PublicOperations(t *testing.T) {
	p := NewProtocol()

	req, err := p.BuildRequest(t.Context(), core.OpGetTicker, core.Params{"symbol": "BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/public/get-ticker", req.Path)
	assert.Equal(t, "BTC_USDT", req.Query["instrument_name"])
	assert.False(t, req.RequireAuth)
	assert.Equal(t, core.ClassPublic, req.Class)

	req, err = p.BuildRequest(t.Context(), core.OpGetOrderBook, core.Params{"symbol": "ETH/USDT", "depth": 10})
	require.NoError(t, err)
	assert.Equal(t, "/public/get-book", req.Path)
	assert.Equal(t, "10", req.Query["depth"])

	req, err = p.BuildRequest(t.Context(), core.OpGetKlines, core.Params{"symbol": "BTC/USDT", "timeframe": "1d"})
	require.NoError(t, err)
	assert.Equal(t, "1D", req.Query["timeframe"])

	_, err = p.BuildRequest(t.Context(), core.OpGetKlines, core.Params{"symbol": "BTC/USDT", "timeframe": "3m"})
	assert.Error(t, err)

	_, err = p.BuildRequest(t.Context(), core.OpGetTicker, core.Params{})
	assert.Error(t, err)
}

func TestBuildRequest_PlaceOrder(t *testing.T) {
	p := NewProtocol()

	req, err := p.BuildRequest(t.Context(), core.OpPlaceOrder, core.Params{
		"symbol":          "BTC/USDT",
		"side":            "BUY",
		"type":            "LIMIT",
		"quantity":        "0.01",
		"price":           "50000",
		"time_in_force":   "IOC",
		"client_order_id": "my-order",
		"post_only":       true,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/private/create-order", req.Path)
	assert.True(t, req.RequireAuth)
	assert.Equal(t, core.ClassOrder, req.Class)

	body, ok := req.Body.(*privateBody)
	require.True(t, ok)
	assert.Equal(t, "private/create-order", body.Method)
	assert.Equal(t, "BTC_USDT", body.Params["instrument_name"])
	assert.Equal(t, "BUY", body.Params["side"])
	assert.Equal(t, "LIMIT", body.Params["type"])
	assert.Equal(t, "IMMEDIATE_OR_CANCEL", body.Params["time_in_force"])
	assert.Equal(t, "my-order", body.Params["client_oid"])
	assert.Equal(t, "POST_ONLY", body.Params["exec_inst"])
}

func TestBuildRequest_StopOrderType(t *testing.T) {
	p := NewProtocol()

	req, err := p.BuildRequest(t.Context(), core.OpPlaceOrder, core.Params{
		"symbol":     "BTC/USDT",
		"side":       "SELL",
		"type":       "STOP_LOSS_LIMIT",
		"quantity":   "0.01",
		"price":      "49000",
		"stop_price": "49500",
	})
	require.NoError(t, err)

	body := req.Body.(*privateBody)
	assert.Equal(t, "STOP_LIMIT", body.Params["type"])
	assert.Equal(t, "49500", body.Params["trigger_price"])
}

func TestParamString(t *testing.T) {
	assert.Empty(t, ParamString(core.Params{}))

	// Keys are flattened in ascending order, key then value.
	got := ParamString(core.Params{
		"instrument_name": "BTC_USDT",
		"side":            "BUY",
		"quantity":        "0.01",
	})
	assert.Equal(t, "instrument_nameBTC_USDTquantity0.01sideBUY", got)

	// Non-string values use their canonical text form.
	got = ParamString(core.Params{"page_size": 20, "post_only": true})
	assert.Equal(t, "page_size20post_onlytrue", got)
}

func TestSign(t *testing.T) {
	const (
		method = "private/create-order"
		apiKey = "test-api-key"
		secret = "test-secret"
		nonce  = int64(1587846358253)
	)
	params := core.Params{
		"instrument_name": "BTC_USDT",
		"price":           "50000",
	}

	got := Sign(method, nonce, apiKey, params, nonce, secret)

	// Recompute the signature from the documented recipe:
	// HMAC-SHA256(method + id + apiKey + sortedParams + nonce, secret).
	payload := fmt.Sprintf("%s%d%s%s%d",
		method, nonce, apiKey, "instrument_nameBTC_USDTprice50000", nonce)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, got)
}

func TestSignRequest(t *testing.T) {
	p := NewProtocol()
	req, err := p.BuildRequest(t.Context(), core.OpGetBalances, core.Params{})
	require.NoError(t, err)

	creds := core.Credentials{APIKey: "key", SecretKey: "secret"}
	require.NoError(t, p.SignRequest(req, creds, 1700000000000))

	body := req.Body.(*privateBody)
	assert.Equal(t, int64(1700000000000), body.ID)
	assert.Equal(t, int64(1700000000000), body.Nonce)
	assert.Equal(t, "key", body.APIKey)
	assert.Equal(t, Sign(body.Method, body.ID, "key", body.Params, body.Nonce, "secret"), body.Sig)
}

func TestSignRequest_Errors(t *testing.T) {
	p := NewProtocol()

	req := core.NewRequest(http.MethodGet, "/public/get-ticker")
	err := p.SignRequest(req, core.Credentials{APIKey: "key", SecretKey: "secret"}, 1)
	assert.Error(t, err, "public requests carry no signable body")

	private, err := p.BuildRequest(t.Context(), core.OpGetBalances, core.Params{})
	require.NoError(t, err)
	assert.Error(t, p.SignRequest(private, core.Credentials{APIKey: "key"}, 1))
}

func TestMapErrorCode(t *testing.T) {
	tests := []struct {
		code int
		want core.ErrorKind
	}{
		{10002, core.KindAuthentication},
		{10003, core.KindAuthentication},
		{10007, core.KindAuthentication},
		{40101, core.KindAuthentication},
		{10006, core.KindRateLimit},
		{42901, core.KindRateLimit},
		{20002, core.KindInsufficientFunds},
		{30003, core.KindInvalidSymbol},
		{20001, core.KindOrder},
		{30008, core.KindOrder},
		{30016, core.KindOrder},
		{30025, core.KindOrder},
		{99999, core.KindExchange},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCode(tt.code))
		})
	}
}
