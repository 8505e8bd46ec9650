// Package statusapi exposes a read-only HTTP mirror of the node's
// latest status, for local operator tooling. It holds no mutable core
// state and never feeds input back into the engine.
package statusapi

import (
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/chainwatch/testnet-peer/pkg/ui"
)

// Snapshot is the latest outbound UI message of each kind the core has
// produced, as last observed by a Mirror.
type Snapshot struct {
	Balance             *ui.Balance             `json:"balance,omitempty"`
	Transactions        []ui.TransactionData     `json:"transactions,omitempty"`
	ReceiveTransactions []ui.PaymentData         `json:"receive_transactions,omitempty"`
	DownloadData        *ui.DownloadProgress     `json:"download_data,omitempty"`
	DownloadDataBlocks  *ui.DownloadProgress     `json:"download_data_blocks,omitempty"`
}

// Mirror is a mutex-guarded Snapshot kept current by Watch, read by
// the HTTP handlers.
type Mirror struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewMirror returns an empty Mirror.
func NewMirror() *Mirror {
	return &Mirror{}
}

// Watch consumes outbound from the UI bridge, updating the mirror's
// snapshot for each message kind observed, until outbound is closed or
// done is closed.
func (m *Mirror) Watch(outbound <-chan ui.UIOutbound, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			m.apply(msg)
		}
	}
}

func (m *Mirror) apply(msg ui.UIOutbound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Balance != nil {
		m.snapshot.Balance = msg.Balance
	}
	if msg.Transactions != nil {
		m.snapshot.Transactions = msg.Transactions
	}
	if msg.ReceiveTransactions != nil {
		m.snapshot.ReceiveTransactions = msg.ReceiveTransactions
	}
	if msg.DownloadData != nil {
		m.snapshot.DownloadData = msg.DownloadData
	}
	if msg.DownloadDataBlocks != nil {
		m.snapshot.DownloadDataBlocks = msg.DownloadDataBlocks
	}
}

// Snapshot returns a copy of the mirror's current status snapshot.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// NewRouter builds the gin router serving the diagnostics surface:
// GET /api/health and GET /api/status, both read-only.
func NewRouter(mirror *Mirror) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(200, mirror.Snapshot())
	})

	return r
}
