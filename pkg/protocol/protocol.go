// Package protocol implements the builders and parsers for the nine
// messages this network exchanges over a connection framed by pkg/wire:
// version, verack, getheaders, headers, getdata, block, tx, inv, and
// notfound.
package protocol

// Command names, NUL-padded to wire.CommandSize on the wire.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdGetHeaders  = "getheaders"
	CmdHeaders     = "headers"
	CmdGetData     = "getdata"
	CmdBlock       = "block"
	CmdTx          = "tx"
	CmdInv         = "inv"
	CmdNotFound    = "notfound"
)

// ProtocolVersion is the version number this node sends in its
// getheaders requests; the version of an incoming getheaders request
// is not checked.
const ProtocolVersion uint32 = 70015

// InvType identifies what an inventory entry in getdata/inv/notfound refers to.
type InvType uint32

const (
	InvTypeTx    InvType = 1
	InvTypeBlock InvType = 2
)

// InvVect is one 36-byte inventory entry: a 4-byte type and a 32-byte hash.
type InvVect struct {
	Type InvType
	Hash [32]byte
}
