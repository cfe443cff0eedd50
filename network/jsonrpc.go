package network

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/amount"
	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/eventlog"
	"github.com/cinder-labs/cinder/ledger"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Handler serves the JSON-RPC surface over a ledger and its journal.
type Handler struct {
	token   *ledger.Token
	journal *eventlog.Journal

	// adminSecret enables the operator methods; empty leaves them
	// unregistered. A valid bearer token acts as the operator account.
	adminSecret []byte
	operator    address.Address
}

// NewHandler creates a new Handler over the ledger and journal.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		token:       cfg.Token,
		journal:     cfg.Journal,
		adminSecret: cfg.AdminSecret,
		operator:    cfg.Operator,
	}
}

func sendJSONRPCError(w http.ResponseWriter, jsonrpcErr *JSONRPCError, id interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   jsonrpcErr,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}

type JSONRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      interface{}   `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorKind names the ledger failure classes for clients, so they can
// branch without parsing messages.
func errorKind(err error) interface{} {
	switch {
	case errors.Is(err, ledger.ErrInvalidAddress):
		return "InvalidAddress"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ledger.ErrInsufficientAllowance):
		return "InsufficientAllowance"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ledger.ErrPaused):
		return "Paused"
	case errors.Is(err, ledger.ErrExpired):
		return "Expired"
	case errors.Is(err, ledger.ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, ledger.ErrConfigOutOfBounds):
		return "ConfigOutOfBounds"
	}
	return nil
}

// Main JSON-RPC handler that routes to appropriate handlers
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONRPCError(w, &JSONRPCError{
			Code:    -32700,
			Message: "Parse error",
		}, req.ID)
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "name":
		result, err = h.handleName(req.Params)
	case "symbol":
		result, err = h.handleSymbol(req.Params)
	case "decimals":
		result, err = h.handleDecimals(req.Params)
	case "totalSupply":
		result, err = h.handleTotalSupply(req.Params)
	case "balanceOf":
		result, err = h.handleBalanceOf(req.Params)
	case "allowance":
		result, err = h.handleAllowance(req.Params)
	case "nonces":
		result, err = h.handleNonces(req.Params)
	case "taxInfo":
		result, err = h.handleTaxInfo(req.Params)
	case "paused":
		result, err = h.handlePaused(req.Params)
	case "calculateTax":
		result, err = h.handleCalculateTax(req.Params)
	case "calculateNetAmount":
		result, err = h.handleCalculateNetAmount(req.Params)
	case "events":
		result, err = h.handleEvents(req.Params)
	case "accountSeen":
		result, err = h.handleAccountSeen(req.Params)
	case "cndr_permit":
		// The one open mutating method: the signature inside the
		// params is the authorization.
		result, err = h.handlePermit(req.Params)
	case "pause", "unpause", "setTaxPercent", "setTaxReceiver", "transferOwnership", "mint", "burn":
		if len(h.adminSecret) == 0 {
			sendJSONRPCError(w, &JSONRPCError{
				Code:    -32601,
				Message: "Method not found",
			}, req.ID)
			return
		}
		caller, authErr := h.authenticateOperator(r)
		if authErr != nil {
			sendJSONRPCError(w, &JSONRPCError{
				Code:    -32000,
				Message: authErr.Error(),
			}, req.ID)
			return
		}
		result, err = h.dispatchAdmin(req.Method, caller, req.Params)
	default:
		sendJSONRPCError(w, &JSONRPCError{
			Code:    -32601,
			Message: "Method not found",
		}, req.ID)
		return
	}

	if err != nil {
		sendJSONRPCError(w, &JSONRPCError{
			Code:    -32603,
			Message: err.Error(),
			Data:    errorKind(err),
		}, req.ID)
		return
	}

	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// authenticateOperator checks the bearer token against the shared
// secret. A valid token speaks for the configured operator account; the
// ledger's own owner check still decides what that account may do.
func (h *Handler) authenticateOperator(r *http.Request) (address.Address, error) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" || tokenString == authHeader {
		return address.Address{}, fmt.Errorf("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.adminSecret, nil
	})
	if err != nil || !token.Valid {
		return address.Address{}, fmt.Errorf("invalid operator token")
	}
	return h.operator, nil
}

func (h *Handler) dispatchAdmin(method string, caller address.Address, params []interface{}) (interface{}, error) {
	switch method {
	case "pause":
		return h.handlePause(caller)
	case "unpause":
		return h.handleUnpause(caller)
	case "setTaxPercent":
		return h.handleSetTaxPercent(caller, params)
	case "setTaxReceiver":
		return h.handleSetTaxReceiver(caller, params)
	case "transferOwnership":
		return h.handleTransferOwnership(caller, params)
	case "mint":
		return h.handleMint(caller, params)
	case "burn":
		return h.handleBurn(caller, params)
	}
	return nil, fmt.Errorf("unknown admin method %q", method)
}

func (h *Handler) handleName(params []interface{}) (interface{}, error) {
	return struct {
		Name string `json:"name"`
	}{h.token.Name()}, nil
}

func (h *Handler) handleSymbol(params []interface{}) (interface{}, error) {
	return struct {
		Symbol string `json:"symbol"`
	}{h.token.Symbol()}, nil
}

func (h *Handler) handleDecimals(params []interface{}) (interface{}, error) {
	return struct {
		Decimals uint8 `json:"decimals"`
	}{h.token.Decimals()}, nil
}

func (h *Handler) handleTotalSupply(params []interface{}) (interface{}, error) {
	supply := h.token.TotalSupply()
	return struct {
		TotalSupply     string `json:"totalSupply"`
		TotalSupplyCNDR string `json:"totalSupplyCNDR"`
	}{supply.String(), amount.String(supply)}, nil
}

func (h *Handler) handleBalanceOf(params []interface{}) (interface{}, error) {
	account, err := paramAddress(params, 0, "address")
	if err != nil {
		return nil, err
	}

	balance := h.token.BalanceOf(account)
	return struct {
		Address     string `json:"address"`
		Balance     string `json:"balance"`
		BalanceCNDR string `json:"balanceCNDR"`
	}{account.String(), balance.String(), amount.String(balance)}, nil
}

func (h *Handler) handleAllowance(params []interface{}) (interface{}, error) {
	owner, err := paramAddress(params, 0, "owner")
	if err != nil {
		return nil, err
	}
	spender, err := paramAddress(params, 1, "spender")
	if err != nil {
		return nil, err
	}

	return struct {
		Owner     string `json:"owner"`
		Spender   string `json:"spender"`
		Allowance string `json:"allowance"`
	}{owner.String(), spender.String(), h.token.Allowance(owner, spender).String()}, nil
}

func (h *Handler) handleNonces(params []interface{}) (interface{}, error) {
	account, err := paramAddress(params, 0, "address")
	if err != nil {
		return nil, err
	}

	return struct {
		Address string `json:"address"`
		Nonce   uint64 `json:"nonce"`
	}{account.String(), h.token.Nonces(account)}, nil
}

func (h *Handler) handleTaxInfo(params []interface{}) (interface{}, error) {
	return struct {
		Variant     string `json:"variant"`
		TaxPercent  uint64 `json:"taxPercent"`
		TaxReceiver string `json:"taxReceiver"`
		Owner       string `json:"owner"`
	}{
		string(h.token.Variant()),
		h.token.TaxPercent(),
		h.token.TaxReceiver().String(),
		h.token.Owner().String(),
	}, nil
}

func (h *Handler) handlePaused(params []interface{}) (interface{}, error) {
	return struct {
		Paused bool `json:"paused"`
	}{h.token.Paused()}, nil
}

func (h *Handler) handleCalculateTax(params []interface{}) (interface{}, error) {
	value, err := paramAmount(params, 0, "value")
	if err != nil {
		return nil, err
	}

	tax, err := h.token.CalculateTax(value)
	if err != nil {
		return nil, err
	}
	return struct {
		Value string `json:"value"`
		Tax   string `json:"tax"`
	}{value.String(), tax.String()}, nil
}

func (h *Handler) handleCalculateNetAmount(params []interface{}) (interface{}, error) {
	value, err := paramAmount(params, 0, "value")
	if err != nil {
		return nil, err
	}

	net, err := h.token.CalculateNetAmount(value)
	if err != nil {
		return nil, err
	}
	return struct {
		Value     string `json:"value"`
		NetAmount string `json:"netAmount"`
	}{value.String(), net.String()}, nil
}

type recordResponse struct {
	Seq  uint64 `json:"seq"`
	Time int64  `json:"time"`
	Kind string `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
	// Value is absent on records that carry no quantity.
	Value string `json:"value,omitempty"`
}

func newRecordResponse(rec eventlog.Record) recordResponse {
	resp := recordResponse{
		Seq:  rec.Seq,
		Time: rec.Time,
		Kind: string(rec.Event.Kind),
		From: rec.Event.From.String(),
		To:   rec.Event.To.String(),
	}
	if rec.Event.Value != nil {
		resp.Value = rec.Event.Value.String()
	}
	return resp
}

func (h *Handler) handleEvents(params []interface{}) (interface{}, error) {
	var after uint64
	limit := uint64(defaultEventLimit)

	var err error
	if len(params) > 0 {
		if after, err = uintFromParam(params[0], "after"); err != nil {
			return nil, err
		}
	}
	if len(params) > 1 {
		if limit, err = uintFromParam(params[1], "limit"); err != nil {
			return nil, err
		}
		if limit > maxEventLimit {
			limit = maxEventLimit
		}
	}

	recs := h.journal.Since(after, int(limit))
	records := make([]recordResponse, len(recs))
	for i, rec := range recs {
		records[i] = newRecordResponse(rec)
	}

	return struct {
		Records []recordResponse `json:"records"`
		LastSeq uint64           `json:"lastSeq"`
	}{records, h.journal.LastSeq()}, nil
}

func (h *Handler) handleAccountSeen(params []interface{}) (interface{}, error) {
	account, err := paramAddress(params, 0, "address")
	if err != nil {
		return nil, err
	}

	return struct {
		Address string `json:"address"`
		Seen    bool   `json:"seen"`
	}{account.String(), h.journal.Seen(account)}, nil
}

func (h *Handler) handlePermit(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("parameters object required")
	}
	reqData, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid parameters format, expected JSON object")
	}

	owner, err := objectAddress(reqData, "owner")
	if err != nil {
		return nil, err
	}
	spender, err := objectAddress(reqData, "spender")
	if err != nil {
		return nil, err
	}

	rawValue, ok := reqData["value"]
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'value'")
	}
	value, err := amountFromParam(rawValue, "value")
	if err != nil {
		return nil, err
	}

	var deadline uint64
	switch d := reqData["deadline"].(type) {
	case float64:
		if d < 0 || d != math.Trunc(d) {
			return nil, fmt.Errorf("missing or invalid 'deadline'")
		}
		deadline = uint64(d)
	case string:
		deadline, err = strconv.ParseUint(d, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("missing or invalid 'deadline'")
		}
	default:
		return nil, fmt.Errorf("missing or invalid 'deadline'")
	}

	sigHex, err := objectString(reqData, "signature")
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %v", err)
	}

	if err := h.token.Permit(owner, spender, value, deadline, sig); err != nil {
		return nil, err
	}

	return struct {
		Owner     string `json:"owner"`
		Spender   string `json:"spender"`
		Allowance string `json:"allowance"`
		Nonce     uint64 `json:"nonce"`
	}{
		owner.String(),
		spender.String(),
		h.token.Allowance(owner, spender).String(),
		h.token.Nonces(owner),
	}, nil
}

func (h *Handler) handlePause(caller address.Address) (interface{}, error) {
	if err := h.token.Pause(caller); err != nil {
		return nil, err
	}
	return struct {
		Paused bool `json:"paused"`
	}{h.token.Paused()}, nil
}

func (h *Handler) handleUnpause(caller address.Address) (interface{}, error) {
	if err := h.token.Unpause(caller); err != nil {
		return nil, err
	}
	return struct {
		Paused bool `json:"paused"`
	}{h.token.Paused()}, nil
}

func (h *Handler) handleSetTaxPercent(caller address.Address, params []interface{}) (interface{}, error) {
	percent, err := paramUint(params, 0, "percent")
	if err != nil {
		return nil, err
	}

	if err := h.token.SetTaxPercent(caller, percent); err != nil {
		return nil, err
	}
	return struct {
		TaxPercent uint64 `json:"taxPercent"`
	}{h.token.TaxPercent()}, nil
}

func (h *Handler) handleSetTaxReceiver(caller address.Address, params []interface{}) (interface{}, error) {
	receiver, err := paramAddress(params, 0, "receiver")
	if err != nil {
		return nil, err
	}

	if err := h.token.SetTaxReceiver(caller, receiver); err != nil {
		return nil, err
	}
	return struct {
		TaxReceiver string `json:"taxReceiver"`
	}{h.token.TaxReceiver().String()}, nil
}

func (h *Handler) handleTransferOwnership(caller address.Address, params []interface{}) (interface{}, error) {
	newOwner, err := paramAddress(params, 0, "newOwner")
	if err != nil {
		return nil, err
	}

	if err := h.token.TransferOwnership(caller, newOwner); err != nil {
		return nil, err
	}
	return struct {
		Owner string `json:"owner"`
	}{h.token.Owner().String()}, nil
}

func (h *Handler) handleMint(caller address.Address, params []interface{}) (interface{}, error) {
	to, err := paramAddress(params, 0, "to")
	if err != nil {
		return nil, err
	}
	value, err := paramAmount(params, 1, "value")
	if err != nil {
		return nil, err
	}

	if err := h.token.Mint(caller, to, value); err != nil {
		return nil, err
	}
	return struct {
		To          string `json:"to"`
		Value       string `json:"value"`
		TotalSupply string `json:"totalSupply"`
	}{to.String(), value.String(), h.token.TotalSupply().String()}, nil
}

func (h *Handler) handleBurn(caller address.Address, params []interface{}) (interface{}, error) {
	value, err := paramAmount(params, 0, "value")
	if err != nil {
		return nil, err
	}

	if err := h.token.Burn(caller, value); err != nil {
		return nil, err
	}
	return struct {
		Value       string `json:"value"`
		TotalSupply string `json:"totalSupply"`
	}{value.String(), h.token.TotalSupply().String()}, nil
}

func paramString(params []interface{}, i int, name string) (string, error) {
	if len(params) <= i {
		return "", fmt.Errorf("%s parameter required", name)
	}
	s, ok := params[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("invalid %s parameter", name)
	}
	return s, nil
}

func paramAddress(params []interface{}, i int, name string) (address.Address, error) {
	s, err := paramString(params, i, name)
	if err != nil {
		return address.Address{}, err
	}
	addr, err := address.FromString(s)
	if err != nil {
		return address.Address{}, fmt.Errorf("invalid %s parameter: %v", name, err)
	}
	return addr, nil
}

func paramAmount(params []interface{}, i int, name string) (*uint256.Int, error) {
	if len(params) <= i {
		return nil, fmt.Errorf("%s parameter required", name)
	}
	return amountFromParam(params[i], name)
}

// amountFromParam accepts a decimal string of base units, or a plain
// number for small values. Numbers lose precision past 2^53, so larger
// quantities must come as strings.
func amountFromParam(param interface{}, name string) (*uint256.Int, error) {
	switch v := param.(type) {
	case string:
		value, err := uint256.FromDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s parameter: %v", name, err)
		}
		return value, nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= float64(uint64(1)<<53) {
			return nil, fmt.Errorf("invalid %s parameter: must be an integer below 2^53, use a string for larger values", name)
		}
		return uint256.NewInt(uint64(v)), nil
	}
	return nil, fmt.Errorf("invalid %s parameter", name)
}

func paramUint(params []interface{}, i int, name string) (uint64, error) {
	if len(params) <= i {
		return 0, fmt.Errorf("%s parameter required", name)
	}
	return uintFromParam(params[i], name)
}

func uintFromParam(param interface{}, name string) (uint64, error) {
	v, ok := param.(float64)
	if !ok || v < 0 || v != math.Trunc(v) {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return uint64(v), nil
}

func objectString(reqData map[string]interface{}, key string) (string, error) {
	s, ok := reqData[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing or invalid '%s'", key)
	}
	return s, nil
}

func objectAddress(reqData map[string]interface{}, key string) (address.Address, error) {
	s, err := objectString(reqData, key)
	if err != nil {
		return address.Address{}, err
	}
	addr, err := address.FromString(s)
	if err != nil {
		return address.Address{}, fmt.Errorf("missing or invalid '%s': %v", key, err)
	}
	return addr, nil
}

/// Balance test curl
// curl -X POST http://localhost:8545/ \
//   -H "Content-Type: application/json" \
//   -d '{"jsonrpc":"2.0","method":"balanceOf","params":["0x15E3952Aae80A2Cd5344C4FEd203545CcbA53e0c"],"id":1}' \
//   -v
