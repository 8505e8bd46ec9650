// Package ui implements the channel-based bridge between the node's
// core engine and an operator-facing interface: two buffered channels
// carrying tagged-union inbound and outbound message shapes, and a
// dispatch loop translating between them and core calls.
package ui

import (
	"context"

	"go.uber.org/zap"
)

// Account requests a new named account be created from a private key.
type Account struct {
	Name          string
	Address       string
	PrivateKeyHex string
}

// Payment requests a spend from OwnAddress to RecipientAddress.
type Payment struct {
	OwnAddress      string
	RecipientAddress string
	Amount          int64
}

// ProofOfInclusion requests a Merkle inclusion check for a transaction
// within a block, both identified by their display-order hex hash.
type ProofOfInclusion struct {
	BlockHashHex string
	TxHashHex    string
}

// RequestDownload asks the engine to (re)start initial block download.
type RequestDownload struct{}

// EndInterface asks the engine to shut down cleanly.
type EndInterface struct{}

// UIInbound is the tagged union of messages the interface sends to the
// core engine. Exactly one field is non-nil per value.
type UIInbound struct {
	Account          *Account
	Payment          *Payment
	ProofOfInclusion *ProofOfInclusion
	RequestDownload  *RequestDownload
	EndInterface     *EndInterface
}

// Balance reports the wallet's current balance breakdown, in satoshis.
type Balance struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
	Immature  int64 `json:"immature"`
	Total     int64 `json:"total"`
}

// TransactionData is one row of the wallet's transaction history.
type TransactionData struct {
	Status string
	Date   string
	Type   string
	Label  string
	Amount int64
}

// PaymentData is one row of incoming payments shown to the operator.
type PaymentData struct {
	Date    string
	Label   string
	Message string
	Amount  int64
}

// DownloadProgress reports download progress for either headers or
// blocks; Total/Received share a unit (count of items).
type DownloadProgress struct {
	Total    int
	Received int
}

// UIOutbound is the tagged union of messages the core engine sends to
// the interface. Exactly one field is non-nil per value.
type UIOutbound struct {
	Balance                  *Balance
	Transactions              []TransactionData
	ReceiveTransactions       []PaymentData
	ResponseProofOfInclusion *bool
	DownloadData              *DownloadProgress
	DownloadDataBlocks        *DownloadProgress
}

// Bridge is the pair of buffered channels carrying inbound and
// outbound messages between the interface and the core engine.
type Bridge struct {
	Inbound  chan UIInbound
	Outbound chan UIOutbound

	cancel context.CancelFunc
	ctx    context.Context
}

// channelBuffer bounds how many queued messages either direction may
// hold before a sender blocks.
const channelBuffer = 32

// NewBridge constructs a Bridge whose Context is cancelled when
// EndInterface is dispatched or Shutdown is called directly.
func NewBridge() *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		Inbound:  make(chan UIInbound, channelBuffer),
		Outbound: make(chan UIOutbound, channelBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context returns the context that every blocking engine loop should
// select on alongside its own work, cancelled on shutdown.
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Shutdown cancels the bridge's context directly, without requiring an
// EndInterface message to flow through Inbound.
func (b *Bridge) Shutdown() {
	b.cancel()
}

// Handlers bundles the core engine callbacks a dispatch loop invokes
// for each inbound message kind. Any field left nil is silently
// ignored if its message kind arrives.
type Handlers struct {
	OnAccount          func(Account)
	OnPayment          func(Payment) error
	OnProofOfInclusion func(ProofOfInclusion) bool
	OnRequestDownload  func()
}

// Dispatch runs the single dispatch goroutine that consumes Inbound
// and invokes the matching handler, sending each ProofOfInclusion
// result back on Outbound; an error from OnPayment is logged, not
// sent. It returns when the bridge's
// context is cancelled (via EndInterface or Shutdown) or Inbound is
// closed.
func Dispatch(b *Bridge, handlers Handlers, log *zap.Logger) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-b.Inbound:
			if !ok {
				return
			}
			dispatchOne(b, handlers, msg, log)
		}
	}
}

func dispatchOne(b *Bridge, handlers Handlers, msg UIInbound, log *zap.Logger) {
	switch {
	case msg.EndInterface != nil:
		b.cancel()
	case msg.Account != nil && handlers.OnAccount != nil:
		handlers.OnAccount(*msg.Account)
	case msg.Payment != nil && handlers.OnPayment != nil:
		if err := handlers.OnPayment(*msg.Payment); err != nil {
			log.Warn("payment dispatch failed", zap.Error(err))
		}
	case msg.ProofOfInclusion != nil && handlers.OnProofOfInclusion != nil:
		result := handlers.OnProofOfInclusion(*msg.ProofOfInclusion)
		b.sendOutbound(UIOutbound{ResponseProofOfInclusion: &result}, log)
	case msg.RequestDownload != nil && handlers.OnRequestDownload != nil:
		handlers.OnRequestDownload()
	}
}

// sendOutbound delivers msg without blocking indefinitely if nothing
// is draining Outbound and the bridge is shutting down.
func (b *Bridge) sendOutbound(msg UIOutbound, log *zap.Logger) {
	select {
	case b.Outbound <- msg:
	case <-b.ctx.Done():
		log.Debug("dropped outbound message during shutdown")
	}
}
