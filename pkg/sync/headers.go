// Package sync implements the parallel header and block download
// engines: per-peer chained getheaders requests with dedup and
// stop-hash termination, and per-header getdata fetch with bounded
// retry on malformed or unexpected responses.
package sync

import (
	"context"
	"fmt"

	btcwire "github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch/testnet-peer/pkg/peer"
	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/validate"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// Progress reports header (or block) download progress back to the UI.
type Progress struct {
	Total    int
	Received int
}

// HeaderSyncResult is the merged header list produced by all workers,
// in peer order.
type HeaderSyncResult struct {
	Headers []btcwire.BlockHeader
}

// headerValid is the proof-of-work/sanity check applied to each
// downloaded header; a package variable so tests can substitute a
// cheap stand-in instead of mining a header that satisfies the
// network's real difficulty target.
var headerValid = validate.HeaderValid

// headerWorker downloads the chain of headers that follows seed, over
// one peer session. With hasNext set it stops right after collecting
// the header whose PrevBlock is nextSeed, so both the header hashing to
// nextSeed and its successor are part of the result.
type headerWorker struct {
	session  *peer.Session
	seed     wire.Hash
	nextSeed wire.Hash
	hasNext  bool
	log      *zap.Logger
}

func (w *headerWorker) run(ctx context.Context) ([]btcwire.BlockHeader, error) {
	var collected []btcwire.BlockHeader
	observed := make(map[wire.Hash]struct{}) // header hashes already appended
	seenPrev := make(map[wire.Hash]struct{}) // prev-hashes seen, for stop-hash termination
	locator := w.seed
	firstHeader := true

	for {
		select {
		case <-ctx.Done():
			return collected, ctx.Err()
		default:
		}

		req := protocol.GetHeadersMessage{
			ProtocolVersion: protocol.ProtocolVersion,
			LocatorHash:     locator,
		}
		framed, err := protocol.EncodeGetHeaders(req)
		if err != nil {
			return collected, fmt.Errorf("sync: encode getheaders: %w", err)
		}
		if err := w.session.Send(framed); err != nil {
			return collected, err
		}

		command, payload, err := w.session.Receive()
		if err != nil {
			return collected, err
		}
		if command != protocol.CmdHeaders {
			return collected, &protocol.ErrUnexpectedCommand{Want: protocol.CmdHeaders, Got: command}
		}

		headersMsg, err := protocol.DecodeHeadersMessage(payload)
		if err != nil {
			return collected, fmt.Errorf("sync: decode headers: %w", err)
		}

		newCount := 0
		stop := false
		for _, h := range headersMsg.Headers {
			if err := headerValid(h); err != nil {
				// End-of-stream padding: the first header that fails
				// PoW marks the end of this response.
				stop = true
				break
			}

			if !firstHeader && validate.IsGenesisPrevHash(h.PrevBlock) {
				// The chain walked all the way back to the genesis
				// checkpoint: nothing further back is useful.
				stop = true
				break
			}
			firstHeader = false

			hash := h.BlockHash()
			if _, dup := observed[hash]; dup {
				continue
			}
			observed[hash] = struct{}{}
			seenPrev[h.PrevBlock] = struct{}{}
			collected = append(collected, h)
			newCount++

			if w.hasNext {
				if _, found := seenPrev[w.nextSeed]; found {
					return collected, nil
				}
			}
		}

		if newCount == 0 || stop {
			return collected, nil
		}

		locator = collected[len(collected)-1].BlockHash()
	}
}

// DownloadHeaders drives one worker per session, each starting at the
// corresponding seed hash and terminating at the next seed in the
// list (or running until the peer has nothing new for the last
// worker). Progress is reported through onProgress once per worker,
// when that worker's run ends. Worker lists are merged in peer order,
// skipping any header an earlier worker already returned.
func DownloadHeaders(ctx context.Context, sessions []*peer.Session, seeds []wire.Hash, log *zap.Logger, onProgress func(Progress)) (HeaderSyncResult, error) {
	if len(sessions) == 0 {
		return HeaderSyncResult{}, fmt.Errorf("sync: no peer sessions supplied")
	}
	if len(seeds) != len(sessions) {
		return HeaderSyncResult{}, fmt.Errorf("sync: need one seed hash per peer, got %d seeds for %d peers", len(seeds), len(sessions))
	}

	group, gctx := errgroup.WithContext(ctx)
	perWorker := make([][]btcwire.BlockHeader, len(sessions))

	for i := range sessions {
		i := i
		group.Go(func() error {
			w := &headerWorker{
				session: sessions[i],
				seed:    seeds[i],
				log:     log,
			}
			if i+1 < len(seeds) {
				w.nextSeed = seeds[i+1]
				w.hasNext = true
			}

			headers, err := w.run(gctx)
			perWorker[i] = headers
			if onProgress != nil {
				onProgress(Progress{Total: len(sessions), Received: i + 1})
			}
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return HeaderSyncResult{}, err
	}

	var merged []btcwire.BlockHeader
	mergedHashes := make(map[wire.Hash]struct{})
	for _, headers := range perWorker {
		for _, h := range headers {
			hash := h.BlockHash()
			if _, dup := mergedHashes[hash]; dup {
				continue
			}
			mergedHashes[hash] = struct{}{}
			merged = append(merged, h)
		}
	}
	return HeaderSyncResult{Headers: merged}, nil
}
