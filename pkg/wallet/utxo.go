// Package wallet tracks unspent outputs for a single watched address,
// computes balances, and builds and signs P2PKH spending transactions.
package wallet

import (
	"fmt"
	"sync"
)

// UTXO is one unspent output: the hex txid that created it, its output
// index, its value in satoshis, and the owning public key.
type UTXO struct {
	TxID      string
	Index     uint32
	Value     int64
	PublicKey []byte
}

func utxoKey(txid string, index uint32) string {
	return fmt.Sprintf("%s:%d", txid, index)
}

// UTXOSet is a mutex-guarded map of UTXOs keyed by (txid, index). No
// two entries share a key; an input that references an entry removes
// it.
type UTXOSet struct {
	mu    sync.Mutex
	utxos map[string]UTXO
	// change tracks the subset of UTXOs that arrived as this wallet's
	// own change output from a prior spend, preferred when funding new
	// spends.
	change map[string]struct{}
}

// NewUTXOSet returns an empty UTXO set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{
		utxos:  make(map[string]UTXO),
		change: make(map[string]struct{}),
	}
}

// Add inserts a UTXO. isChange marks it as belonging to the "returned
// change" subset preferred when selecting funding for a new spend.
func (s *UTXOSet) Add(u UTXO, isChange bool) {
	key := utxoKey(u.TxID, u.Index)
	s.mu.Lock()
	s.utxos[key] = u
	if isChange {
		s.change[key] = struct{}{}
	}
	s.mu.Unlock()
}

// RemoveByTxID removes every UTXO created by txid and reports whether
// any were removed. Persisted UTXOs cannot reliably reconstruct their
// originating output index, so spent outputs are located by txid match
// alone rather than by the full (txid, index) key.
func (s *UTXOSet) RemoveByTxID(txid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for key, u := range s.utxos {
		if u.TxID == txid {
			delete(s.utxos, key)
			delete(s.change, key)
			removed = true
		}
	}
	return removed
}

// Balance returns the sum of every UTXO's value.
func (s *UTXOSet) Balance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, u := range s.utxos {
		total += u.Value
	}
	return total
}

// All returns a snapshot slice of every UTXO currently held.
func (s *UTXOSet) All() []UTXO {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UTXO, 0, len(s.utxos))
	for _, u := range s.utxos {
		out = append(out, u)
	}
	return out
}

// SelectChangeForAmount greedily selects from the change subset until
// their sum is at least amount. It returns the selected UTXOs and their
// total, or ok=false if the change subset (or overall balance) cannot
// cover amount.
func (s *UTXOSet) SelectChangeForAmount(amount int64) (selected []UTXO, total int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.change {
		if total >= amount {
			break
		}
		u, present := s.utxos[key]
		if !present {
			continue
		}
		selected = append(selected, u)
		total += u.Value
	}

	return selected, total, total >= amount
}
