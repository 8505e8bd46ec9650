package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTXOSetAddAndBalance(t *testing.T) {
	set := NewUTXOSet()
	set.Add(UTXO{TxID: "a", Index: 0, Value: 1000}, false)
	set.Add(UTXO{TxID: "b", Index: 1, Value: 2500}, true)

	assert.Equal(t, int64(3500), set.Balance())
	assert.Len(t, set.All(), 2)
}

func TestUTXOSetRemoveByTxIDReportsWhetherFound(t *testing.T) {
	set := NewUTXOSet()
	set.Add(UTXO{TxID: "a", Index: 0, Value: 1000}, false)

	assert.True(t, set.RemoveByTxID("a"))
	assert.False(t, set.RemoveByTxID("a"))
	assert.Equal(t, int64(0), set.Balance())
}

func TestUTXOSetRemoveByTxIDRemovesAllMatchingOutputs(t *testing.T) {
	set := NewUTXOSet()
	set.Add(UTXO{TxID: "a", Index: 0, Value: 100}, false)
	set.Add(UTXO{TxID: "a", Index: 1, Value: 200}, false)
	set.Add(UTXO{TxID: "b", Index: 0, Value: 300}, false)

	require.True(t, set.RemoveByTxID("a"))
	assert.Equal(t, int64(300), set.Balance())
}

func TestUTXOSetSelectChangeForAmount(t *testing.T) {
	set := NewUTXOSet()
	set.Add(UTXO{TxID: "spendable", Index: 0, Value: 10000}, false)
	set.Add(UTXO{TxID: "change1", Index: 0, Value: 600}, true)
	set.Add(UTXO{TxID: "change2", Index: 0, Value: 700}, true)

	selected, total, ok := set.SelectChangeForAmount(1000)
	require.True(t, ok)
	assert.GreaterOrEqual(t, total, int64(1000))
	assert.Len(t, selected, 2)
	for _, u := range selected {
		assert.NotEqual(t, "spendable", u.TxID)
	}
}

func TestUTXOSetSelectChangeForAmountInsufficientFailsEvenWithSpendableFunds(t *testing.T) {
	set := NewUTXOSet()
	set.Add(UTXO{TxID: "spendable", Index: 0, Value: 100000}, false)
	set.Add(UTXO{TxID: "change1", Index: 0, Value: 100}, true)

	_, _, ok := set.SelectChangeForAmount(1000)
	assert.False(t, ok)
}
