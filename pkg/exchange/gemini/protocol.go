package gemini

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"resty.dev/v3"

	"lintas/pkg/core"
)

const (
	ProductionURL = "https://api.gemini.com"
	SandboxURL    = "https://api.sandbox.gemini.com"
)

// Protocol implements the core.Protocol interface for the Gemini REST API.
// Public operations are plain GET calls with the symbol in the path. Private
// operations POST an empty body and carry everything in headers:
//
//	X-GEMINI-APIKEY:    the API key
//	X-GEMINI-PAYLOAD:   base64(JSON{"request": path, "nonce": n, ...params})
//	X-GEMINI-SIGNATURE: hex(HMAC-SHA384(payload, secret))
//
// The signature is computed over the base64 payload string, not the raw JSON.
type Protocol struct{}

// NewProtocol creates a new Gemini protocol instance.
func NewProtocol() *Protocol {
	return &Protocol{}
}

// Name returns the protocol identifier "gemini".
func (p *Protocol) Name() string {
	return "gemini"
}

// Version returns the Gemini API version string.
func (p *Protocol) Version() string {
	return "1"
}

// BaseURL returns the base URL for the Gemini API.
// If sandbox is true, returns the sandbox environment URL.
func (p *Protocol) BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// SupportedOperations returns the list of operations supported by this protocol.
func (p *Protocol) SupportedOperations() []core.Operation {
	return []core.Operation{
		core.OpGetInstruments,
		core.OpGetTicker,
		core.OpGetOrderBook,
		core.OpGetTrades,
		core.OpGetKlines,
		core.OpGetBalances,
		core.OpGetAccountInfo,
		core.OpPlaceOrder,
		core.OpCancelOrder,
		core.OpGetOrder,
		core.OpGetOpenOrders,
		core.OpGetOrderHistory,
	}
}

// BuildRequest constructs a venue request for the given operation.
func (p *Protocol) BuildRequest(ctx context.Context, op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpGetInstruments:
		return core.NewRequest(http.MethodGet, "/v1/symbols"), nil

	case core.OpGetTicker:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		return core.NewRequest(http.MethodGet, "/v2/ticker/"+formatSymbol(symbol)), nil

	case core.OpGetOrderBook:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		req := core.NewRequest(http.MethodGet, "/v1/book/"+formatSymbol(symbol))
		if depth, ok := params["depth"].(int); ok && depth > 0 {
			req.SetQuery("limit_bids", depth)
			req.SetQuery("limit_asks", depth)
		}
		return req, nil

	case core.OpGetTrades:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		req := core.NewRequest(http.MethodGet, "/v1/trades/"+formatSymbol(symbol))
		if limit, ok := params["limit"].(int); ok && limit > 0 {
			req.SetQuery("limit_trades", limit)
		}
		return req, nil

	case core.OpGetKlines:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		timeframe, err := requiredString(params, "timeframe")
		if err != nil {
			return nil, err
		}
		venueTF, ok := formatTimeframe(timeframe)
		if !ok {
			return nil, fmt.Errorf("timeframe %s not offered by venue: %w", timeframe, core.ErrUnsupported)
		}
		return core.NewRequest(http.MethodGet,
			"/v2/candles/"+formatSymbol(symbol)+"/"+venueTF), nil

	case core.OpGetBalances, core.OpGetAccountInfo:
		return p.privateRequest("/v1/balances", core.Params{}), nil

	case core.OpPlaceOrder:
		return p.buildPlaceOrder(params)

	case core.OpCancelOrder:
		orderID, err := requiredString(params, "order_id")
		if err != nil {
			return nil, err
		}
		req := p.privateRequest("/v1/order/cancel", core.Params{"order_id": orderID})
		req.SetClass(core.ClassOrder)
		return req, nil

	case core.OpGetOrder:
		orderID, err := requiredString(params, "order_id")
		if err != nil {
			return nil, err
		}
		return p.privateRequest("/v1/order/status", core.Params{"order_id": orderID}), nil

	case core.OpGetOpenOrders:
		return p.privateRequest("/v1/orders", core.Params{}), nil

	case core.OpGetOrderHistory:
		payload := core.Params{}
		if symbol, ok := params["symbol"].(string); ok && symbol != "" {
			payload["symbol"] = formatSymbol(symbol)
		}
		if limit, ok := params["limit"].(int); ok && limit > 0 {
			payload["limit_orders"] = limit
		}
		return p.privateRequest("/v1/orders/history", payload), nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func (p *Protocol) buildPlaceOrder(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	side, err := requiredString(params, "side")
	if err != nil {
		return nil, err
	}
	orderType, err := requiredString(params, "type")
	if err != nil {
		return nil, err
	}
	quantity, err := requiredString(params, "quantity")
	if err != nil {
		return nil, err
	}
	price, err := requiredString(params, "price")
	if err != nil {
		// The venue only accepts limit-style orders; a market order has no
		// price to submit.
		return nil, fmt.Errorf("market orders not offered by venue: %w", core.ErrUnsupported)
	}

	payload := core.Params{
		"symbol": formatSymbol(symbol),
		"side":   strings.ToLower(side),
		"amount": quantity,
		"price":  price,
	}

	venueType, options, err := formatOrderType(orderType, params)
	if err != nil {
		return nil, err
	}
	payload["type"] = venueType
	if len(options) > 0 {
		payload["options"] = options
	}
	if stop, ok := params["stop_price"].(string); ok && stop != "" {
		payload["stop_price"] = stop
	}
	if clientOrderID, ok := params["client_order_id"].(string); ok && clientOrderID != "" {
		payload["client_order_id"] = clientOrderID
	}

	req := p.privateRequest("/v1/order/new", payload)
	req.SetClass(core.ClassOrder)
	return req, nil
}

// formatOrderType maps the canonical order type plus flags onto Gemini's
// "exchange limit" / "exchange stop limit" types and order options.
func formatOrderType(canonical string, params core.Params) (string, []string, error) {
	var options []string
	if postOnly, ok := params["post_only"].(bool); ok && postOnly {
		options = append(options, "maker-or-cancel")
	}
	switch tif, _ := params["time_in_force"].(string); strings.ToUpper(tif) {
	case "IOC":
		options = append(options, "immediate-or-cancel")
	case "FOK":
		options = append(options, "fill-or-kill")
	}

	switch strings.ToUpper(canonical) {
	case "LIMIT":
		return "exchange limit", options, nil
	case "STOP_LOSS_LIMIT":
		return "exchange stop limit", options, nil
	default:
		return "", nil, fmt.Errorf("order type %s not offered by venue: %w", canonical, core.ErrUnsupported)
	}
}

// privatePayload marks a request body as a Gemini signed payload. The body
// is never sent on the wire; SignRequest folds it into the headers.
type privatePayload struct {
	Request string      `json:"request"`
	Nonce   int64       `json:"nonce"`
	Params  core.Params `json:"-"`
}

func (p *Protocol) privateRequest(path string, params core.Params) *core.Request {
	req := core.NewRequest(http.MethodPost, path)
	req.SetBody(&privatePayload{Request: path, Params: params})
	req.SetRequireAuth(true)
	return req
}

// SignRequest assembles the payload JSON, encodes it, signs it, and places
// the three authentication headers. The request body is cleared: Gemini
// private calls carry an empty body.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, nonce int64) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	payload, ok := req.Body.(*privatePayload)
	if !ok {
		return fmt.Errorf("request is not signable: body is %T", req.Body)
	}
	payload.Nonce = nonce

	encoded, err := EncodePayload(payload.Request, payload.Nonce, payload.Params)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req.Body = nil
	req.SetHeader("Content-Type", "text/plain")
	req.SetHeader("Content-Length", "0")
	req.SetHeader("Cache-Control", "no-cache")
	req.SetHeader("X-GEMINI-APIKEY", creds.APIKey)
	req.SetHeader("X-GEMINI-PAYLOAD", encoded)
	req.SetHeader("X-GEMINI-SIGNATURE", Sign(encoded, creds.SecretKey))
	return nil
}

// EncodePayload builds the base64 payload string for a signed request.
func EncodePayload(request string, nonce int64, params core.Params) (string, error) {
	fields := make(map[string]any, len(params)+2)
	for k, v := range params {
		fields[k] = v
	}
	fields["request"] = request
	fields["nonce"] = nonce

	raw, err := sonic.Marshal(fields)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Sign computes hex(HMAC-SHA384(payload, secret)) over the base64 payload.
func Sign(encodedPayload, secret string) string {
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

// geminiAPIError is the error body shape: {"result":"error","reason":...}.
type geminiAPIError struct {
	Result  string `json:"result"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ParseResponse classifies failures and normalizes the payload into its
// canonical type.
func (p *Protocol) ParseResponse(op core.Operation, resp *resty.Response) (any, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}

	if resp.StatusCode() >= 400 {
		var apiErr geminiAPIError
		if err := sonic.Unmarshal(resp.Bytes(), &apiErr); err == nil && apiErr.Reason != "" {
			return nil, core.NewVenueError(p.Name(), mapReason(apiErr.Reason, resp.StatusCode()),
				resp.StatusCode(), apiErr.Message).WithCode(apiErr.Reason)
		}
		return nil, core.NewVenueError(p.Name(), core.ClassifyHTTPStatus(resp.StatusCode()),
			resp.StatusCode(), fmt.Sprintf("HTTP error: %s", resp.Status()))
	}

	n := NewNormalizer()

	switch op {
	case core.OpGetInstruments:
		var symbols []string
		if err := sonic.Unmarshal(resp.Bytes(), &symbols); err != nil {
			return nil, p.malformed("symbols", err)
		}
		return n.NormalizeInstruments(symbols), nil

	case core.OpGetTicker:
		var data gmTicker
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("ticker", err)
		}
		ticker, err := n.NormalizeTicker(&data)
		if err != nil {
			return nil, p.malformed("ticker", err)
		}
		return ticker, nil

	case core.OpGetOrderBook:
		var data gmBook
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("order book", err)
		}
		book, err := n.NormalizeOrderBook(&data, "")
		if err != nil {
			return nil, p.malformed("order book", err)
		}
		return book, nil

	case core.OpGetTrades:
		var data []gmTrade
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("trades", err)
		}
		trades, err := n.NormalizeTrades(data, "")
		if err != nil {
			return nil, p.malformed("trades", err)
		}
		return trades, nil

	case core.OpGetKlines:
		var data [][]json.Number
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("candles", err)
		}
		return n.NormalizeKlines(data, "", core.Timeframe1m), nil

	case core.OpGetBalances:
		var data []gmBalance
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("balances", err)
		}
		balances, err := n.NormalizeBalances(data)
		if err != nil {
			return nil, p.malformed("balances", err)
		}
		return balances, nil

	case core.OpGetAccountInfo:
		var data []gmBalance
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("balances", err)
		}
		balances, err := n.NormalizeBalances(data)
		if err != nil {
			return nil, p.malformed("balances", err)
		}
		return &core.AccountInfo{
			Balances:  balances,
			CanTrade:  true,
			Timestamp: timeNow(),
		}, nil

	case core.OpPlaceOrder, core.OpCancelOrder, core.OpGetOrder:
		var data gmOrder
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("order", err)
		}
		return n.NormalizeOrder(&data)

	case core.OpGetOpenOrders, core.OpGetOrderHistory:
		var data []gmOrder
		if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
			return nil, p.malformed("orders", err)
		}
		return n.NormalizeOrders(data)

	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func (p *Protocol) malformed(what string, err error) error {
	return core.NewVenueError(p.Name(), core.KindExchange, 0,
		fmt.Sprintf("malformed %s payload: %v", what, err)).
		WithCode(string(core.ErrCodeMalformedResponse))
}

// mapReason translates documented Gemini error reasons into the taxonomy.
// Reasons outside the documented set fall back to the HTTP status mapping.
func mapReason(reason string, status int) core.ErrorKind {
	switch reason {
	case "InvalidSignature", "InvalidNonce", "MissingApikeyHeader",
		"MissingPayloadHeader", "MissingSignatureHeader", "InvalidApiKey",
		"ApiKeyRevoked", "ApiKeyExpired", "RoleConflict", "NoAccountOfTypeRequired":
		return core.KindAuthentication
	case "RateLimit":
		return core.KindRateLimit
	case "Maintenance":
		// The venue is down, not throttling.
		return core.KindConnection
	case "InsufficientFunds":
		return core.KindInsufficientFunds
	case "InvalidSymbol", "UnknownSymbol":
		return core.KindInvalidSymbol
	case "InvalidQuantity", "InvalidPrice", "InvalidSide", "InvalidOrderType",
		"OrderNotFound", "MakerOrCancelWouldTake", "ImmediateOrCancelWouldPost",
		"SelfCrossPrevented", "InvalidStopPrice", "ClientOrderIdTooLong",
		"ClientOrderIdMustBeString", "ConflictingOptions", "ConflictingAccountName":
		return core.KindOrder
	case "System", "EndpointNotFound", "EndpointMismatch", "MarketNotOpen":
		return core.KindExchange
	default:
		return core.ClassifyHTTPStatus(status)
	}
}

func requiredString(params core.Params, key string) (string, error) {
	val, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	str, ok := val.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("parameter %s must be a non-empty string", key)
	}
	return str, nil
}
