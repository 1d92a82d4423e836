package cryptocom

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"resty.dev/v3"

	"lintas/pkg/core"
)

const (
	ProductionURL = "https://api.crypto.com/v2"
	SandboxURL    = "https://uat-api.3ona.co/v2"
)

// Protocol implements the core.Protocol interface for the Crypto.com
// Exchange v2 API. Public operations are plain GET calls; private operations
// are JSON-RPC style POST bodies carrying the credentials and signature:
//
//	{"id": 11, "method": "private/create-order", "api_key": "...",
//	 "params": {...}, "nonce": 1587846358253, "sig": "..."}
//
// The signature is hex(HMAC-SHA256(method + id + api_key + paramString +
// nonce, secret)) where paramString is the params map flattened as
// key-then-value pairs in ascending key order.
type Protocol struct{}

// NewProtocol creates a new Crypto.com protocol instance.
func NewProtocol() *Protocol {
	return &Protocol{}
}

// Name returns the protocol identifier "cryptocom".
func (p *Protocol) Name() string {
	return "cryptocom"
}

// Version returns the Crypto.com API version string.
func (p *Protocol) Version() string {
	return "2"
}

// BaseURL returns the base URL for the Crypto.com API.
// If sandbox is true, returns the UAT environment URL.
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

// privateBody is the JSON-RPC style envelope for signed requests.
type privateBody struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	APIKey string      `json:"api_key,omitempty"`
	Params core.Params `json:"params"`
	Nonce  int64       `json:"nonce,omitempty"`
	Sig    string      `json:"sig,omitempty"`
}

// BuildRequest constructs a venue request for the given operation.
func (p *Protocol) BuildRequest(ctx context.Context, op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpGetInstruments:
		return core.NewRequest(http.MethodGet, "/public/get-instruments"), nil

	case core.OpGetTicker:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		req := core.NewRequest(http.MethodGet, "/public/get-ticker")
		req.SetQuery("instrument_name", formatSymbol(symbol))
		return req, nil

	case core.OpGetOrderBook:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		req := core.NewRequest(http.MethodGet, "/public/get-book")
		req.SetQuery("instrument_name", formatSymbol(symbol))
		req.SetQuery("depth", strconv.Itoa(intOrDefault(params, "depth", 50)))
		return req, nil

	case core.OpGetTrades:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		req := core.NewRequest(http.MethodGet, "/public/get-trades")
		req.SetQuery("instrument_name", formatSymbol(symbol))
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
			return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
		}
		req := core.NewRequest(http.MethodGet, "/public/get-candlestick")
		req.SetQuery("instrument_name", formatSymbol(symbol))
		req.SetQuery("timeframe", venueTF)
		return req, nil

	case core.OpGetBalances, core.OpGetAccountInfo:
		return p.privateRequest("private/get-account-summary", core.Params{}), nil

	case core.OpPlaceOrder:
		return p.buildPlaceOrder(params)

	case core.OpCancelOrder:
		symbol, err := requiredString(params, "symbol")
		if err != nil {
			return nil, err
		}
		orderID, err := requiredString(params, "order_id")
		if err != nil {
			return nil, err
		}
		req := p.privateRequest("private/cancel-order", core.Params{
			"instrument_name": formatSymbol(symbol),
			"order_id":        orderID,
		})
		req.SetClass(core.ClassOrder)
		return req, nil

	case core.OpGetOrder:
		orderID, err := requiredString(params, "order_id")
		if err != nil {
			return nil, err
		}
		return p.privateRequest("private/get-order-detail", core.Params{
			"order_id": orderID,
		}), nil

	case core.OpGetOpenOrders:
		rpcParams := core.Params{}
		if symbol, ok := params["symbol"].(string); ok && symbol != "" {
			rpcParams["instrument_name"] = formatSymbol(symbol)
		}
		return p.privateRequest("private/get-open-orders", rpcParams), nil

	case core.OpGetOrderHistory:
		rpcParams := core.Params{}
		if symbol, ok := params["symbol"].(string); ok && symbol != "" {
			rpcParams["instrument_name"] = formatSymbol(symbol)
		}
		if limit, ok := params["limit"].(int); ok && limit > 0 {
			rpcParams["page_size"] = limit
		}
		return p.privateRequest("private/get-order-history", rpcParams), nil

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

	rpcParams := core.Params{
		"instrument_name": formatSymbol(symbol),
		"side":            strings.ToUpper(side),
		"type":            formatOrderType(orderType),
		"quantity":        quantity,
	}

	if price, ok := params["price"].(string); ok && price != "" {
		rpcParams["price"] = price
	}
	if stop, ok := params["stop_price"].(string); ok && stop != "" {
		rpcParams["trigger_price"] = stop
	}
	if tif, ok := params["time_in_force"].(string); ok && tif != "" {
		rpcParams["time_in_force"] = formatTimeInForce(tif)
	}
	if clientOrderID, ok := params["client_order_id"].(string); ok && clientOrderID != "" {
		rpcParams["client_oid"] = clientOrderID
	}
	if postOnly, ok := params["post_only"].(bool); ok && postOnly {
		rpcParams["exec_inst"] = "POST_ONLY"
	}

	req := p.privateRequest("private/create-order", rpcParams)
	req.SetClass(core.ClassOrder)
	return req, nil
}

func (p *Protocol) privateRequest(method string, params core.Params) *core.Request {
	req := core.NewRequest(http.MethodPost, "/"+method)
	req.SetBody(&privateBody{Method: method, Params: params})
	req.SetHeader("Content-Type", "application/json")
	req.SetRequireAuth(true)
	return req
}

// SignRequest completes the JSON-RPC envelope: it assigns the request id and
// nonce, places the API key in the body, and computes the signature over the
// canonical parameter string. The request must have been produced by
// BuildRequest for a private operation.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, nonce int64) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	body, ok := req.Body.(*privateBody)
	if !ok {
		return fmt.Errorf("request is not signable: body is %T", req.Body)
	}

	body.ID = nonce
	body.Nonce = nonce
	body.APIKey = creds.APIKey
	body.Sig = Sign(body.Method, body.ID, creds.APIKey, body.Params, body.Nonce, creds.SecretKey)
	return nil
}

// Sign computes the Crypto.com request signature:
// hex(HMAC-SHA256(method + id + apiKey + paramString + nonce, secret)).
func Sign(method string, id int64, apiKey string, params core.Params, nonce int64, secret string) string {
	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteString(strconv.FormatInt(id, 10))
	sb.WriteString(apiKey)
	sb.WriteString(ParamString(params))
	sb.WriteString(strconv.FormatInt(nonce, 10))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParamString flattens params as key-then-value pairs in ascending key order,
// the canonicalization the venue validates signatures against.
func ParamString(params core.Params) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(paramValue(params[k]))
	}
	return sb.String()
}

func paramValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// envelope is the v2 response wrapper shared by every endpoint.
type envelope struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// ParseResponse unwraps the v2 envelope, classifies venue error codes, and
// normalizes the result payload into its canonical type.
func (p *Protocol) ParseResponse(op core.Operation, resp *resty.Response) (any, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}

	var env envelope
	if err := sonic.Unmarshal(resp.Bytes(), &env); err != nil {
		if resp.StatusCode() >= 400 {
			return nil, core.NewVenueError(p.Name(), core.ClassifyHTTPStatus(resp.StatusCode()),
				resp.StatusCode(), fmt.Sprintf("HTTP error: %s", resp.Status()))
		}
		return nil, core.NewVenueError(p.Name(), core.KindExchange, resp.StatusCode(),
			fmt.Sprintf("malformed response: %v", err)).
			WithCode(string(core.ErrCodeMalformedResponse))
	}

	if env.Code != 0 {
		return nil, p.classify(env.Code, env.Message, resp.StatusCode())
	}
	if resp.StatusCode() >= 400 {
		return nil, core.NewVenueError(p.Name(), core.ClassifyHTTPStatus(resp.StatusCode()),
			resp.StatusCode(), fmt.Sprintf("HTTP error: %s", resp.Status()))
	}

	n := NewNormalizer()

	switch op {
	case core.OpGetInstruments:
		var data struct {
			Instruments []ccInstrument `json:"instruments"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("instruments", err)
		}
		instruments, err := n.NormalizeInstruments(data.Instruments)
		if err != nil {
			return nil, p.malformed("instruments", err)
		}
		return instruments, nil

	case core.OpGetTicker:
		var data struct {
			Data ccTicker `json:"data"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("ticker", err)
		}
		return n.NormalizeTicker(&data.Data), nil

	case core.OpGetOrderBook:
		var data struct {
			InstrumentName string   `json:"instrument_name"`
			Data           []ccBook `json:"data"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("order book", err)
		}
		if len(data.Data) == 0 {
			return nil, p.malformed("order book", fmt.Errorf("empty data"))
		}
		return n.NormalizeOrderBook(&data.Data[0], data.InstrumentName), nil

	case core.OpGetTrades:
		var data struct {
			Data []ccTrade `json:"data"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("trades", err)
		}
		return n.NormalizeTrades(data.Data), nil

	case core.OpGetKlines:
		var data struct {
			InstrumentName string    `json:"instrument_name"`
			Interval       string    `json:"interval"`
			Data           []ccKline `json:"data"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("candlesticks", err)
		}
		return n.NormalizeKlines(data.Data, data.InstrumentName, data.Interval), nil

	case core.OpGetBalances:
		var data ccAccountSummary
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("account summary", err)
		}
		return n.NormalizeBalances(&data), nil

	case core.OpGetAccountInfo:
		var data ccAccountSummary
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("account summary", err)
		}
		return n.NormalizeAccountInfo(&data), nil

	case core.OpPlaceOrder:
		var data struct {
			OrderID   string `json:"order_id"`
			ClientOID string `json:"client_oid"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("order ack", err)
		}
		return &core.Order{
			ID:            data.OrderID,
			ClientOrderID: data.ClientOID,
			Status:        core.StatusPending,
		}, nil

	case core.OpCancelOrder:
		// Cancel acks carry no order payload; the caller re-queries for state.
		return &core.Order{Status: core.StatusCanceled}, nil

	case core.OpGetOrder:
		var data struct {
			OrderInfo ccOrder `json:"order_info"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("order detail", err)
		}
		return n.NormalizeOrder(&data.OrderInfo)

	case core.OpGetOpenOrders, core.OpGetOrderHistory:
		var data struct {
			OrderList []ccOrder `json:"order_list"`
		}
		if err := sonic.Unmarshal(env.Result, &data); err != nil {
			return nil, p.malformed("order list", err)
		}
		return n.NormalizeOrders(data.OrderList)

	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func (p *Protocol) malformed(what string, err error) error {
	return core.NewVenueError(p.Name(), core.KindExchange, 0,
		fmt.Sprintf("malformed %s payload: %v", what, err)).
		WithCode(string(core.ErrCodeMalformedResponse))
}

func (p *Protocol) classify(code int, message string, status int) *core.VenueError {
	ve := core.NewVenueError(p.Name(), mapErrorCode(code), status, message)
	return ve.WithCode(strconv.Itoa(code))
}

// mapErrorCode translates documented v2 error codes into the taxonomy.
// Codes outside the documented set fall back to the generic exchange kind.
func mapErrorCode(code int) core.ErrorKind {
	switch code {
	case 10002, 10003, 10007, 40101:
		return core.KindAuthentication
	case 10006, 42901:
		return core.KindRateLimit
	case 20002:
		return core.KindInsufficientFunds
	case 30003:
		return core.KindInvalidSymbol
	case 20001, 30004, 30005, 30006, 30007, 30008, 30009, 30010,
		30013, 30014, 30016, 30017, 30023, 30024, 30025:
		return core.KindOrder
	default:
		return core.KindExchange
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

func intOrDefault(params core.Params, key string, def int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return def
}
