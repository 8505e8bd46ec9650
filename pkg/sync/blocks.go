package sync

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	btcwire "github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch/testnet-peer/pkg/peer"
	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/validate"
)

// zeroRunLength is the length of a consecutive-zero-byte run in a
// block payload that this network's occasional malformed responses
// produce; its presence anywhere in the payload fails the sanity check.
const zeroRunLength = 50

// RetryConfig bounds a getdata worker's retry/back-off behavior.
// Sourced from Config (§9) rather than compiled-in constants so the
// engine's liveness bounds are configuration, making it
// deterministically testable with small values.
type RetryConfig struct {
	GetDataRetryLimit          int
	MalformedPayloadRetryLimit int
	RetryBackoff               time.Duration
}

// DefaultRetryConfig returns the network's documented retry/back-off
// bounds, for a caller with no configuration override.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		GetDataRetryLimit:          14,
		MalformedPayloadRetryLimit: 6,
		RetryBackoff:               350 * time.Millisecond,
	}
}

// TimeWindow bounds which headers (by header timestamp) are eligible
// for block download.
type TimeWindow struct {
	Low  time.Time
	High time.Time
}

// InRange reports whether h's timestamp falls within the window.
func (w TimeWindow) InRange(h btcwire.BlockHeader) bool {
	return !h.Timestamp.Before(w.Low) && !h.Timestamp.After(w.High)
}

// BlockSyncResult is the set of blocks downloaded across all workers.
// Ordering between workers is not enforced.
type BlockSyncResult struct {
	Blocks []protocol.BlockMessage
}

// PartitionHeaders splits in-range headers into n roughly-equal
// contiguous slices, one per worker.
func PartitionHeaders(headers []btcwire.BlockHeader, window TimeWindow, n int) [][]btcwire.BlockHeader {
	var inRange []btcwire.BlockHeader
	for _, h := range headers {
		if window.InRange(h) {
			inRange = append(inRange, h)
		}
	}

	if n <= 0 {
		n = 1
	}
	slices := make([][]btcwire.BlockHeader, n)
	if len(inRange) == 0 {
		return slices
	}

	base := len(inRange) / n
	remainder := len(inRange) % n
	offset := 0
	for i := 0; i < n; i++ {
		size := base
		if i < remainder {
			size++
		}
		slices[i] = inRange[offset : offset+size]
		offset += size
	}
	return slices
}

func hasLongZeroRun(payload []byte) bool {
	return bytes.Contains(payload, bytes.Repeat([]byte{0}, zeroRunLength))
}

func fetchBlock(session *peer.Session, h btcwire.BlockHeader, retry RetryConfig, log *zap.Logger) (protocol.BlockMessage, bool) {
	req := protocol.NewGetDataBlock(h.PrevBlock)
	framed, err := protocol.EncodeGetData(req)
	if err != nil {
		log.Warn("encode getdata failed", zap.Error(err))
		return protocol.BlockMessage{}, false
	}

	for mismatchAttempt := 0; mismatchAttempt < retry.GetDataRetryLimit; mismatchAttempt++ {
		if err := session.Send(framed); err != nil {
			log.Warn("getdata send failed", zap.Error(err))
			return protocol.BlockMessage{}, false
		}

		command, payload, err := session.Receive()
		if err != nil {
			log.Warn("getdata receive failed", zap.Error(err))
			return protocol.BlockMessage{}, false
		}

		if command != protocol.CmdBlock {
			session.Drain()
			time.Sleep(retry.RetryBackoff)
			continue
		}

		block, ok := tryParseBlock(payload, log)
		if ok {
			return block, true
		}

		for malformedAttempt := 0; malformedAttempt < retry.MalformedPayloadRetryLimit-1; malformedAttempt++ {
			if err := session.Send(framed); err != nil {
				return protocol.BlockMessage{}, false
			}
			command, payload, err := session.Receive()
			if err != nil {
				return protocol.BlockMessage{}, false
			}
			if command != protocol.CmdBlock {
				session.Drain()
				time.Sleep(retry.RetryBackoff)
				break
			}
			if block, ok := tryParseBlock(payload, log); ok {
				return block, true
			}
			time.Sleep(retry.RetryBackoff)
		}
		return protocol.BlockMessage{}, false
	}
	return protocol.BlockMessage{}, false
}

// tryParseBlock applies the two sanity checks from the spec: the
// header must parse and satisfy proof-of-work, and the payload must
// not contain a long run of zero bytes (a symptom of this network's
// occasional malformed retransmission).
func tryParseBlock(payload []byte, log *zap.Logger) (protocol.BlockMessage, bool) {
	if hasLongZeroRun(payload) {
		return protocol.BlockMessage{}, false
	}

	block, err := protocol.DecodeBlockMessage(payload)
	if err != nil {
		return protocol.BlockMessage{}, false
	}
	if err := validate.HeaderValid(block.Header); err != nil {
		return protocol.BlockMessage{}, false
	}
	return block, true
}

// downloadSlice fetches every header in headers over session, skipping
// any header that exhausts its retry budget.
func downloadSlice(ctx context.Context, session *peer.Session, headers []btcwire.BlockHeader, retry RetryConfig, log *zap.Logger) []protocol.BlockMessage {
	var blocks []protocol.BlockMessage
	for _, h := range headers {
		select {
		case <-ctx.Done():
			return blocks
		default:
		}

		block, ok := fetchBlock(session, h, retry, log)
		if !ok {
			log.Warn("skipping header after exhausting retries", zap.String("prev_block_hash", h.PrevBlock.String()))
			continue
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// DownloadBlocks partitions headers across sessions by time window and
// fetches each slice in parallel, one goroutine per peer.
func DownloadBlocks(ctx context.Context, sessions []*peer.Session, headers []btcwire.BlockHeader, window TimeWindow, retry RetryConfig, log *zap.Logger, onProgress func(Progress)) (BlockSyncResult, error) {
	if len(sessions) == 0 {
		return BlockSyncResult{}, fmt.Errorf("sync: no peer sessions supplied")
	}

	slices := PartitionHeaders(headers, window, len(sessions))
	group, gctx := errgroup.WithContext(ctx)
	perWorker := make([][]protocol.BlockMessage, len(sessions))

	total := 0
	for _, s := range slices {
		total += len(s)
	}
	var received atomic.Int64

	for i := range sessions {
		i := i
		group.Go(func() error {
			blocks := downloadSlice(gctx, sessions[i], slices[i], retry, log)
			perWorker[i] = blocks
			received.Add(int64(len(blocks)))
			if onProgress != nil {
				onProgress(Progress{Total: total, Received: int(received.Load())})
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return BlockSyncResult{}, err
	}

	var merged []protocol.BlockMessage
	for _, blocks := range perWorker {
		merged = append(merged, blocks...)
	}
	return BlockSyncResult{Blocks: merged}, nil
}
