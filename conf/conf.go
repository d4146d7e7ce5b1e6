// Package conf defines the node's static configuration: chain identity,
// network addresses, the optional validator key that turns a node into a
// block producer, and genesis parameters. Sourcing a Config from a file or
// flags is out of scope here; callers build one directly (see cmd/rdposd).
package conf

import "github.com/rdpos-chain/core/common"

// Config is every knob node.New needs to bring a node up.
type Config struct {
	// ChainID is mixed into every transaction and vote signature.
	ChainID uint64

	// DataDir is the on-disk leveldb directory. Empty means an in-memory
	// database, useful for tests and ephemeral nodes.
	DataDir string

	// ListenAddr is the TCP address the P2P manager listens on, e.g.
	// ":30303". ServerPort is the port advertised in the handshake; it is a
	// separate setting because the listener may bind 0.0.0.0 while peers dial
	// a specific routable IP, so it can differ from ListenAddr's port
	// (cmd/rdposd defaults it to that port when left at zero).
	ListenAddr string
	ServerPort uint16

	// NodeType is this node's own P2P handshake identity.
	NodeType nodeTypeConfig

	// BootstrapPeers seeds the discovery worker's initial dial set.
	BootstrapPeers []BootstrapPeer

	// MinPeers/MaxPeers bound the discovery worker's target connection count.
	MinPeers int
	MaxPeers int

	// ValidatorPrivKey, when non-zero, makes this node a block producer:
	// node.New builds a consensus.Engine alongside the rest of the stack, and
	// Node.Start runs it.
	ValidatorPrivKey common.PrivKey

	// GenesisValidators is the initial rdPoS validator set. Every node
	// (validator or not) needs this to construct rdpos.RdPoS and validate
	// inbound blocks.
	GenesisValidators []common.Address

	// GenesisPrivKey signs the synthesized genesis block storage.Open
	// creates on an empty database.
	GenesisPrivKey common.PrivKey

	// GenesisBalances credits native balances to a fixed set of addresses at
	// bring-up, before any block has been processed.
	GenesisBalances map[common.Address]uint64
}

// nodeTypeConfig mirrors p2p.NodeType without importing p2p, keeping conf a
// leaf package with no dependency on the networking stack.
type nodeTypeConfig byte

const (
	NodeTypeNormal    nodeTypeConfig = 0
	NodeTypeDiscovery nodeTypeConfig = 1
)

// BootstrapPeer is a dialable discovery seed, conf's transport-agnostic
// mirror of p2p.Addr.
type BootstrapPeer struct {
	Discovery bool
	IP        string
	Port      uint16
}
