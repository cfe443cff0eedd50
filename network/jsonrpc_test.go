package network

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder-labs/cinder/crypto"
	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/eip712"
	"github.com/cinder-labs/cinder/eventlog"
	"github.com/cinder-labs/cinder/ledger"
)

func testAddr(b byte) address.Address {
	var a address.Address
	a[address.Size-1] = b
	return a
}

var (
	ownerAddr    = testAddr(0xAA)
	treasuryAddr = testAddr(0xBB)
	ledgerAddr   = testAddr(0xCC)
	aliceAddr    = testAddr(0x01)
	bobAddr      = testAddr(0x02)
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func burnLedgerConfig() ledger.Config {
	return ledger.Config{
		Name:          "Cinder",
		Symbol:        "CNDR",
		ChainID:       1337,
		LedgerAddress: ledgerAddr,
		Owner:         ownerAddr,
		InitialSupply: uint256.NewInt(1_000_000),
		Variant:       ledger.VariantBurn,
		Strict:        true,
	}
}

func feeLedgerConfig() ledger.Config {
	cfg := burnLedgerConfig()
	cfg.Variant = ledger.VariantFee
	cfg.TaxPercent = 2
	cfg.TaxReceiver = treasuryAddr
	return cfg
}

type testNode struct {
	token   *ledger.Token
	journal *eventlog.Journal
	feed    *EventFeed
	srv     *httptest.Server
}

func startNode(t *testing.T, lcfg ledger.Config, ncfg Config) *testNode {
	t.Helper()

	journal := eventlog.New(eventlog.Config{Log: discardLog()})
	lcfg.Events = journal
	token, err := ledger.New(lcfg)
	require.NoError(t, err)

	ncfg.Token = token
	ncfg.Journal = journal
	ncfg.Log = discardLog()
	router := NewRouter(ncfg)

	srv := httptest.NewServer(router.SetupRoutes())
	t.Cleanup(srv.Close)
	t.Cleanup(router.EventFeed().Close)

	return &testNode{token: token, journal: journal, feed: router.EventFeed(), srv: srv}
}

func newTestNode(t *testing.T) *testNode {
	return startNode(t, burnLedgerConfig(), Config{})
}

func newAdminNode(t *testing.T, lcfg ledger.Config, operator address.Address) *testNode {
	return startNode(t, lcfg, Config{AdminSecret: testSecret, Operator: operator})
}

func (n *testNode) call(t *testing.T, method string, params ...interface{}) (json.RawMessage, *JSONRPCError) {
	return n.callAuth(t, "", method, params...)
}

func (n *testNode) callAuth(t *testing.T, bearer, method string, params ...interface{}) (json.RawMessage, *JSONRPCError) {
	t.Helper()

	body, err := json.Marshal(JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, n.srv.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := n.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Result, out.Error
}

func decodeResult(t *testing.T, raw json.RawMessage, into interface{}) {
	t.Helper()
	require.NotNil(t, raw)
	require.NoError(t, json.Unmarshal(raw, into))
}

func operatorToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func TestNameSymbolDecimals(t *testing.T) {
	node := newTestNode(t)

	raw, rpcErr := node.call(t, "name")
	require.Nil(t, rpcErr)
	var name struct {
		Name string `json:"name"`
	}
	decodeResult(t, raw, &name)
	assert.Equal(t, "Cinder", name.Name)

	raw, rpcErr = node.call(t, "symbol")
	require.Nil(t, rpcErr)
	var symbol struct {
		Symbol string `json:"symbol"`
	}
	decodeResult(t, raw, &symbol)
	assert.Equal(t, "CNDR", symbol.Symbol)

	raw, rpcErr = node.call(t, "decimals")
	require.Nil(t, rpcErr)
	var decimals struct {
		Decimals uint8 `json:"decimals"`
	}
	decodeResult(t, raw, &decimals)
	assert.Equal(t, uint8(18), decimals.Decimals)
}

func TestTotalSupplyAndBalance(t *testing.T) {
	node := newTestNode(t)

	raw, rpcErr := node.call(t, "totalSupply")
	require.Nil(t, rpcErr)
	var supply struct {
		TotalSupply     string `json:"totalSupply"`
		TotalSupplyCNDR string `json:"totalSupplyCNDR"`
	}
	decodeResult(t, raw, &supply)
	assert.Equal(t, "1000000", supply.TotalSupply)
	assert.Equal(t, "0.000000000001 CNDR", supply.TotalSupplyCNDR)

	raw, rpcErr = node.call(t, "balanceOf", ownerAddr.String())
	require.Nil(t, rpcErr)
	var balance struct {
		Address     string `json:"address"`
		Balance     string `json:"balance"`
		BalanceCNDR string `json:"balanceCNDR"`
	}
	decodeResult(t, raw, &balance)
	assert.Equal(t, ownerAddr.String(), balance.Address)
	assert.Equal(t, "1000000", balance.Balance)

	raw, rpcErr = node.call(t, "balanceOf", aliceAddr.String())
	require.Nil(t, rpcErr)
	decodeResult(t, raw, &balance)
	assert.Equal(t, "0", balance.Balance)
}

func TestBalanceOfParamErrors(t *testing.T) {
	node := newTestNode(t)

	_, rpcErr := node.call(t, "balanceOf")
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32603, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "address parameter required")

	_, rpcErr = node.call(t, "balanceOf", "0x1234")
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "invalid address parameter")
}

func TestAllowanceAndNonces(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.token.Approve(ownerAddr, bobAddr, uint256.NewInt(42)))

	raw, rpcErr := node.call(t, "allowance", ownerAddr.String(), bobAddr.String())
	require.Nil(t, rpcErr)
	var allowance struct {
		Allowance string `json:"allowance"`
	}
	decodeResult(t, raw, &allowance)
	assert.Equal(t, "42", allowance.Allowance)

	raw, rpcErr = node.call(t, "nonces", ownerAddr.String())
	require.Nil(t, rpcErr)
	var nonces struct {
		Nonce uint64 `json:"nonce"`
	}
	decodeResult(t, raw, &nonces)
	assert.Equal(t, uint64(0), nonces.Nonce)
}

func TestTaxInfoAndCalculators(t *testing.T) {
	node := startNode(t, feeLedgerConfig(), Config{})

	raw, rpcErr := node.call(t, "taxInfo")
	require.Nil(t, rpcErr)
	var info struct {
		Variant     string `json:"variant"`
		TaxPercent  uint64 `json:"taxPercent"`
		TaxReceiver string `json:"taxReceiver"`
		Owner       string `json:"owner"`
	}
	decodeResult(t, raw, &info)
	assert.Equal(t, "fee", info.Variant)
	assert.Equal(t, uint64(2), info.TaxPercent)
	assert.Equal(t, treasuryAddr.String(), info.TaxReceiver)
	assert.Equal(t, ownerAddr.String(), info.Owner)

	raw, rpcErr = node.call(t, "calculateTax", "1000")
	require.Nil(t, rpcErr)
	var tax struct {
		Value string `json:"value"`
		Tax   string `json:"tax"`
	}
	decodeResult(t, raw, &tax)
	assert.Equal(t, "1000", tax.Value)
	assert.Equal(t, "20", tax.Tax)

	raw, rpcErr = node.call(t, "calculateNetAmount", float64(1000))
	require.Nil(t, rpcErr)
	var net struct {
		NetAmount string `json:"netAmount"`
	}
	decodeResult(t, raw, &net)
	assert.Equal(t, "980", net.NetAmount)
}

func TestMethodNotFound(t *testing.T) {
	node := newTestNode(t)

	body := `{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":7}`
	resp, err := http.Post(node.srv.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, -32601, out.Error.Code)
	assert.EqualValues(t, 7, out.ID)
}

func TestParseError(t *testing.T) {
	node := newTestNode(t)

	resp, err := http.Post(node.srv.URL+"/rpc", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, -32700, out.Error.Code)
}

func TestRootPathServesRPC(t *testing.T) {
	node := newTestNode(t)

	body := `{"jsonrpc":"2.0","method":"paused","params":[],"id":1}`
	resp, err := http.Post(node.srv.URL+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Result struct {
			Paused bool `json:"paused"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Result.Paused)
}

func TestRPCPreflight(t *testing.T) {
	node := newTestNode(t)

	req, err := http.NewRequest(http.MethodOptions, node.srv.URL+"/rpc", nil)
	require.NoError(t, err)
	resp, err := node.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventsAndAccountSeen(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.token.Transfer(ownerAddr, aliceAddr, uint256.NewInt(500)))

	raw, rpcErr := node.call(t, "events")
	require.Nil(t, rpcErr)
	var events struct {
		Records []recordResponse `json:"records"`
		LastSeq uint64           `json:"lastSeq"`
	}
	decodeResult(t, raw, &events)

	// Genesis mint, then the burn deduction and the net transfer.
	require.Len(t, events.Records, 3)
	assert.Equal(t, uint64(3), events.LastSeq)
	assert.Equal(t, "transfer", events.Records[0].Kind)
	assert.Equal(t, address.Null().String(), events.Records[0].From)
	assert.Equal(t, "tokens_burned", events.Records[1].Kind)
	assert.Equal(t, "5", events.Records[1].Value)
	assert.Equal(t, "transfer", events.Records[2].Kind)
	assert.Equal(t, "495", events.Records[2].Value)
	assert.Equal(t, aliceAddr.String(), events.Records[2].To)

	raw, rpcErr = node.call(t, "events", float64(2), float64(1))
	require.Nil(t, rpcErr)
	decodeResult(t, raw, &events)
	require.Len(t, events.Records, 1)
	assert.Equal(t, uint64(3), events.Records[0].Seq)

	raw, rpcErr = node.call(t, "accountSeen", aliceAddr.String())
	require.Nil(t, rpcErr)
	var seen struct {
		Seen bool `json:"seen"`
	}
	decodeResult(t, raw, &seen)
	assert.True(t, seen.Seen)

	raw, rpcErr = node.call(t, "accountSeen", testAddr(0xDD).String())
	require.Nil(t, rpcErr)
	decodeResult(t, raw, &seen)
	assert.False(t, seen.Seen)
}

func TestPermitOverRPC(t *testing.T) {
	node := newTestNode(t)

	signer, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	granter := signer.Address()

	value := uint256.NewInt(777)
	deadline := uint64(time.Now().Add(time.Hour).Unix())
	digest := eip712.PermitDigest(node.token.DomainSeparator(), granter, bobAddr, value, 0, deadline)
	sig, err := signer.Sign(digest)
	require.NoError(t, err)

	raw, rpcErr := node.call(t, "cndr_permit", map[string]interface{}{
		"owner":     granter.String(),
		"spender":   bobAddr.String(),
		"value":     "777",
		"deadline":  deadline,
		"signature": "0x" + hex.EncodeToString(sig),
	})
	require.Nil(t, rpcErr)

	var out struct {
		Allowance string `json:"allowance"`
		Nonce     uint64 `json:"nonce"`
	}
	decodeResult(t, raw, &out)
	assert.Equal(t, "777", out.Allowance)
	assert.Equal(t, uint64(1), out.Nonce)
	assert.True(t, node.token.Allowance(granter, bobAddr).Eq(value))
}

func TestPermitRejectsExpiredDeadline(t *testing.T) {
	node := newTestNode(t)

	_, rpcErr := node.call(t, "cndr_permit", map[string]interface{}{
		"owner":     aliceAddr.String(),
		"spender":   bobAddr.String(),
		"value":     "1",
		"deadline":  float64(1),
		"signature": "00",
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32603, rpcErr.Code)
	assert.Equal(t, "Expired", rpcErr.Data)
}

func TestPermitRejectsTamperedSignature(t *testing.T) {
	node := newTestNode(t)

	signer, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	granter := signer.Address()

	value := uint256.NewInt(5)
	deadline := uint64(time.Now().Add(time.Hour).Unix())
	digest := eip712.PermitDigest(node.token.DomainSeparator(), granter, bobAddr, value, 0, deadline)
	sig, err := signer.Sign(digest)
	require.NoError(t, err)
	sig[10] ^= 0xFF

	_, rpcErr := node.call(t, "cndr_permit", map[string]interface{}{
		"owner":     granter.String(),
		"spender":   bobAddr.String(),
		"value":     "5",
		"deadline":  deadline,
		"signature": hex.EncodeToString(sig),
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, "InvalidSignature", rpcErr.Data)
	assert.True(t, node.token.Allowance(granter, bobAddr).IsZero())
}

func TestPermitParamValidation(t *testing.T) {
	node := newTestNode(t)

	_, rpcErr := node.call(t, "cndr_permit")
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "parameters object required")

	_, rpcErr = node.call(t, "cndr_permit", "not an object")
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "expected JSON object")

	_, rpcErr = node.call(t, "cndr_permit", map[string]interface{}{
		"owner":     aliceAddr.String(),
		"spender":   bobAddr.String(),
		"value":     "1",
		"deadline":  float64(1),
		"signature": "zz",
	})
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "invalid signature encoding")
}

func TestAdminMethodsAbsentWithoutSecret(t *testing.T) {
	node := newTestNode(t)

	_, rpcErr := node.call(t, "pause")
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	node := newAdminNode(t, burnLedgerConfig(), ownerAddr)

	_, rpcErr := node.call(t, "pause")
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "missing bearer token")

	_, rpcErr = node.callAuth(t, "garbage", "pause")
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "invalid operator token")

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "operator"}).
		SignedString([]byte("another secret entirely, wrong"))
	require.NoError(t, err)
	_, rpcErr = node.callAuth(t, wrongKey, "pause")
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)

	assert.False(t, node.token.Paused())
}

func TestAdminPauseUnpause(t *testing.T) {
	node := newAdminNode(t, burnLedgerConfig(), ownerAddr)
	bearer := operatorToken(t)

	raw, rpcErr := node.callAuth(t, bearer, "pause")
	require.Nil(t, rpcErr)
	var paused struct {
		Paused bool `json:"paused"`
	}
	decodeResult(t, raw, &paused)
	assert.True(t, paused.Paused)
	assert.True(t, node.token.Paused())

	raw, rpcErr = node.callAuth(t, bearer, "unpause")
	require.Nil(t, rpcErr)
	decodeResult(t, raw, &paused)
	assert.False(t, paused.Paused)
}

func TestAdminTaxConfig(t *testing.T) {
	node := newAdminNode(t, feeLedgerConfig(), ownerAddr)
	bearer := operatorToken(t)

	raw, rpcErr := node.callAuth(t, bearer, "setTaxPercent", float64(7))
	require.Nil(t, rpcErr)
	var percent struct {
		TaxPercent uint64 `json:"taxPercent"`
	}
	decodeResult(t, raw, &percent)
	assert.Equal(t, uint64(7), percent.TaxPercent)

	_, rpcErr = node.callAuth(t, bearer, "setTaxPercent", float64(11))
	require.NotNil(t, rpcErr)
	assert.Equal(t, "ConfigOutOfBounds", rpcErr.Data)
	assert.Equal(t, uint64(7), node.token.TaxPercent())

	raw, rpcErr = node.callAuth(t, bearer, "setTaxReceiver", treasuryAddr.String())
	require.Nil(t, rpcErr)
	var receiver struct {
		TaxReceiver string `json:"taxReceiver"`
	}
	decodeResult(t, raw, &receiver)
	assert.Equal(t, treasuryAddr.String(), receiver.TaxReceiver)
}

func TestAdminMintBurn(t *testing.T) {
	node := newAdminNode(t, burnLedgerConfig(), ownerAddr)
	bearer := operatorToken(t)

	raw, rpcErr := node.callAuth(t, bearer, "mint", aliceAddr.String(), "250")
	require.Nil(t, rpcErr)
	var minted struct {
		TotalSupply string `json:"totalSupply"`
	}
	decodeResult(t, raw, &minted)
	assert.Equal(t, "1000250", minted.TotalSupply)
	assert.True(t, node.token.BalanceOf(aliceAddr).Eq(uint256.NewInt(250)))

	raw, rpcErr = node.callAuth(t, bearer, "burn", "1000")
	require.Nil(t, rpcErr)
	var burned struct {
		TotalSupply string `json:"totalSupply"`
	}
	decodeResult(t, raw, &burned)
	assert.Equal(t, "999250", burned.TotalSupply)
}

func TestAdminStaleOperator(t *testing.T) {
	node := newAdminNode(t, burnLedgerConfig(), ownerAddr)
	bearer := operatorToken(t)

	raw, rpcErr := node.callAuth(t, bearer, "transferOwnership", aliceAddr.String())
	require.Nil(t, rpcErr)
	var owner struct {
		Owner string `json:"owner"`
	}
	decodeResult(t, raw, &owner)
	assert.Equal(t, aliceAddr.String(), owner.Owner)

	// The bearer token still authenticates, but the account it speaks
	// for no longer owns the ledger.
	_, rpcErr = node.callAuth(t, bearer, "pause")
	require.NotNil(t, rpcErr)
	assert.Equal(t, "Unauthorized", rpcErr.Data)
	assert.False(t, node.token.Paused())
}

func TestStatusAndPing(t *testing.T) {
	node := newTestNode(t)

	resp, err := http.Get(node.srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	var pong map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pong))
	assert.Equal(t, "ok", pong["status"])

	resp, err = http.Get(node.srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var status struct {
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		ChainID     uint64 `json:"chainId"`
		Variant     string `json:"variant"`
		Paused      bool   `json:"paused"`
		TotalSupply string `json:"totalSupply"`
		LastSeq     uint64 `json:"lastSeq"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "Cinder", status.Name)
	assert.Equal(t, uint64(1337), status.ChainID)
	assert.Equal(t, "burn", status.Variant)
	assert.Equal(t, "1000000", status.TotalSupply)
	assert.Equal(t, uint64(1), status.LastSeq)
}

func TestRPCRejectsGet(t *testing.T) {
	node := newTestNode(t)

	resp, err := http.Get(node.srv.URL + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
