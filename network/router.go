// Package network exposes the ledger over HTTP: a JSON-RPC endpoint for
// queries, permits and operator actions, plus a websocket feed that
// streams journal records.
package network

import (
	"log/slog"

	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/eventlog"
	"github.com/cinder-labs/cinder/ledger"
)

// Config wires the server to the rest of the node. Token and Journal
// must be non-nil.
type Config struct {
	Token   *ledger.Token
	Journal *eventlog.Journal

	// AdminSecret signs operator bearer tokens. Leave empty to run
	// without the operator methods.
	AdminSecret []byte
	// Operator is the account a valid bearer token speaks for.
	Operator address.Address

	Log *slog.Logger
}

type Router struct {
	rpc *Handler   // JSON-RPC handler
	ws  *EventFeed // WebSocket handler
	log *slog.Logger
}

func NewRouter(cfg Config) *Router {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Router{
		rpc: NewHandler(cfg),
		ws:  NewEventFeed(cfg),
		log: cfg.Log,
	}
}

// EventFeed returns the websocket feed so the caller can close it on
// shutdown.
func (r *Router) EventFeed() *EventFeed {
	return r.ws
}
