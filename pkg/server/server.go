// Package server implements the reactive (server) side of a peer
// connection: completing the handshake on accept, then answering
// getheaders/getdata requests from in-memory header and block stores.
package server

import (
	"fmt"

	btcwire "github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/chainwatch/testnet-peer/pkg/peer"
	"github.com/chainwatch/testnet-peer/pkg/protocol"
)

// MaxHeadersReturned bounds how many headers one getheaders response
// carries, matching the wire limit in pkg/protocol.
const MaxHeadersReturned = protocol.MaxHeadersPerMessage

// Store is the read-only, in-memory chain data a server answers
// requests from. It is safe for concurrent use by multiple handler
// goroutines because it never mutates after being populated at
// startup.
type Store struct {
	Headers []btcwire.BlockHeader
	Blocks  []protocol.BlockMessage
}

// NewStore wraps pre-loaded headers and blocks (typically read back by
// pkg/store at startup) as a server Store.
func NewStore(headers []btcwire.BlockHeader, blocks []protocol.BlockMessage) *Store {
	return &Store{Headers: headers, Blocks: blocks}
}

// GetBlock finds the block whose header PrevBlock equals hash.
//
// Matching on PrevBlock rather than each header's own hash mirrors how
// this network's getdata requests are keyed (see pkg/sync/blocks.go),
// so a server built from the same header slice a client downloaded
// answers consistently with how that client itself made requests.
func (s *Store) GetBlock(hash [32]byte) (protocol.BlockMessage, bool) {
	for _, b := range s.Blocks {
		if b.Header.PrevBlock == hash {
			return b, true
		}
	}
	return protocol.BlockMessage{}, false
}

// GetTx finds a transaction by its txid across every stored block.
func (s *Store) GetTx(hash [32]byte) (*btcwire.MsgTx, bool) {
	for _, b := range s.Blocks {
		for _, tx := range b.Transactions {
			if protocol.TxID(tx) == hash {
				return tx, true
			}
		}
	}
	return nil, false
}

// GetHeaders returns up to MaxHeadersReturned consecutive headers
// starting at the first header whose PrevBlock equals locator, ending
// at (and including) the header whose own hash equals stop.
func (s *Store) GetHeaders(locator, stop [32]byte) []btcwire.BlockHeader {
	var result []btcwire.BlockHeader
	started := false
	for _, h := range s.Headers {
		if h.PrevBlock == locator {
			started = true
		}
		if !started {
			continue
		}
		result = append(result, h)
		if h.BlockHash() == stop || len(result) == MaxHeadersReturned {
			break
		}
	}
	return result
}

// Serve loops on a session whose handshake has already been completed
// (by peer.Accept, or skipped via peer.Wrap), answering
// getheaders/getdata requests from store until the peer disconnects
// or sends an unrecoverable message.
func Serve(session *peer.Session, store *Store, log *zap.Logger) error {
	for {
		command, payload, err := session.Receive()
		if err != nil {
			return fmt.Errorf("server: receive: %w", err)
		}

		switch command {
		case protocol.CmdGetHeaders:
			if err := handleGetHeaders(session, store, payload); err != nil {
				log.Warn("getheaders handling failed", zap.Error(err))
			}
		case protocol.CmdGetData:
			if err := handleGetData(session, store, payload); err != nil {
				log.Warn("getdata handling failed", zap.Error(err))
			}
		default:
			log.Debug("ignoring unhandled command", zap.String("command", command))
		}
	}
}

func handleGetHeaders(session *peer.Session, store *Store, payload []byte) error {
	req, err := protocol.DecodeGetHeadersMessage(payload)
	if err != nil {
		return fmt.Errorf("decode getheaders: %w", err)
	}

	headers := store.GetHeaders(req.LocatorHash, req.StopHash)
	framed, err := protocol.EncodeHeaders(protocol.HeadersMessage{Headers: headers})
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	return session.Send(framed)
}

func handleGetData(session *peer.Session, store *Store, payload []byte) error {
	req, err := protocol.DecodeInventoryMessage(payload)
	if err != nil {
		return fmt.Errorf("decode getdata: %w", err)
	}

	for _, entry := range req.Entries {
		if err := respondToInventory(session, store, entry); err != nil {
			return err
		}
	}
	return nil
}

func respondToInventory(session *peer.Session, store *Store, entry protocol.InvVect) error {
	switch entry.Type {
	case protocol.InvTypeBlock:
		if block, ok := store.GetBlock(entry.Hash); ok {
			framed, err := protocol.EncodeBlock(block)
			if err != nil {
				return fmt.Errorf("encode block: %w", err)
			}
			return session.Send(framed)
		}
	case protocol.InvTypeTx:
		if tx, ok := store.GetTx(entry.Hash); ok {
			payload, err := protocol.EncodeTx(tx)
			if err != nil {
				return fmt.Errorf("encode tx: %w", err)
			}
			framed, err := protocol.EncodeTxMessage(payload)
			if err != nil {
				return fmt.Errorf("frame tx: %w", err)
			}
			return session.Send(framed)
		}
	}

	framed, err := protocol.EncodeNotFound(protocol.InventoryMessage{Entries: []protocol.InvVect{entry}})
	if err != nil {
		return fmt.Errorf("encode notfound: %w", err)
	}
	return session.Send(framed)
}
