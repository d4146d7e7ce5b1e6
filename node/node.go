// Package node is the composition root: it owns every subsystem (storage,
// rdPoS, state, p2p, consensus) by value and wires them together through
// narrow interfaces, with no subsystem holding a back-pointer to Node
// itself. Arbitrary extra services can still attach via RegisterLifecycle,
// the same hook the teacher's own node.Node exposes.
//
// Grounded on node/node_example_test.go's Config/RegisterLifecycle/Start/
// Close shape and original_source/src/net/p2p/p2pmanager.h +
// original_source/src/core/consensus.h's composition (State, P2P Manager,
// Storage, Consensus all held by the owning process, never holding each
// other in a cycle).
package node

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/holiman/uint256"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/conf"
	"github.com/rdpos-chain/core/consensus"
	"github.com/rdpos-chain/core/log"
	"github.com/rdpos-chain/core/p2p"
	"github.com/rdpos-chain/core/rdpos"
	"github.com/rdpos-chain/core/state"
	"github.com/rdpos-chain/core/storage"
	"github.com/rdpos-chain/core/tosdb"
	"github.com/rdpos-chain/core/tosdb/leveldb"
	"github.com/rdpos-chain/core/tosdb/memorydb"
)

// Lifecycle is an externally attachable service with a start/stop hook,
// exactly the shape node/node_example_test.go demonstrates.
type Lifecycle interface {
	Start() error
	Stop() error
}

// Node owns the full node stack and its lifecycle.
type Node struct {
	log log.Logger

	storage *storage.Storage
	rdpos   *rdpos.RdPoS
	state   *state.State
	network *p2p.Manager
	disc    *p2p.Discovery
	engine  *consensus.Engine // nil on a non-validator node

	listenAddr string

	mu         sync.Mutex
	lifecycles []Lifecycle
	started    bool
	cancelDisc context.CancelFunc
}

// New builds every subsystem from cfg but does not start any of them;
// call Start to bring the node up.
func New(cfg *conf.Config) (*Node, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("node: opening database: %w", err)
	}

	chain, err := storage.Open(db, cfg.GenesisPrivKey)
	if err != nil {
		return nil, fmt.Errorf("node: opening storage: %w", err)
	}

	engine, err := rdpos.New(cfg.GenesisValidators, chain)
	if err != nil {
		return nil, fmt.Errorf("node: constructing rdpos: %w", err)
	}

	st := state.New(db, chain, engine, cfg.ChainID)
	for addr, balance := range cfg.GenesisBalances {
		if err := st.CreditGenesisAccount(addr, uint256.NewInt(balance)); err != nil {
			return nil, fmt.Errorf("node: crediting genesis account %s: %w", addr.Hex(), err)
		}
	}

	selfType := p2p.NodeNormal
	if cfg.NodeType == conf.NodeTypeDiscovery {
		selfType = p2p.NodeDiscovery
	}
	network := p2p.NewManager(selfType, cfg.ServerPort, chain, engine, st, st)
	disc := p2p.NewDiscovery(network, convertBootstrap(cfg.BootstrapPeers), cfg.MinPeers, cfg.MaxPeers)

	n := &Node{
		log:        log.New("module", "node"),
		storage:    chain,
		rdpos:      engine,
		state:      st,
		network:    network,
		disc:       disc,
		listenAddr: cfg.ListenAddr,
	}

	if cfg.ValidatorPrivKey != (common.PrivKey{}) {
		n.engine = consensus.New(st, chain, engine, network, cfg.ValidatorPrivKey, cfg.ChainID)
	}

	n.RegisterLifecycle(dbLifecycle{n})
	return n, nil
}

func openDB(cfg *conf.Config) (tosdb.Database, error) {
	if cfg.DataDir == "" {
		return memorydb.New(), nil
	}
	return leveldb.New(cfg.DataDir, 0, 0, "rdposchain/db", false)
}

func convertBootstrap(peers []conf.BootstrapPeer) []p2p.Addr {
	out := make([]p2p.Addr, 0, len(peers))
	for _, p := range peers {
		typ := p2p.NodeNormal
		if p.Discovery {
			typ = p2p.NodeDiscovery
		}
		out = append(out, p2p.Addr{Type: typ, IP: net.ParseIP(p.IP), Port: p.Port})
	}
	return out
}

// RegisterLifecycle attaches an extra service to the node's Start/Stop
// sequence. Must be called before Start.
func (n *Node) RegisterLifecycle(l Lifecycle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lifecycles = append(n.lifecycles, l)
}

// Start brings up networking, discovery, and (on a validator node) the
// consensus engine, then runs every registered Lifecycle's Start hook.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return fmt.Errorf("node: already started")
	}

	if err := n.network.Listen(n.listenAddr); err != nil {
		return fmt.Errorf("node: listening: %w", err)
	}
	discCtx, cancel := context.WithCancel(context.Background())
	n.cancelDisc = cancel
	n.disc.Start(discCtx)
	if n.engine != nil {
		n.engine.Start()
	}
	for _, l := range n.lifecycles {
		if err := l.Start(); err != nil {
			return err
		}
	}
	n.started = true
	return nil
}

// Close stops every subsystem in reverse dependency order: consensus first
// (so it stops producing blocks), then discovery and p2p, then every
// registered Lifecycle in reverse registration order, ending with the storage
// flush New registers first. The database handle itself is not closed.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return nil
	}
	if n.engine != nil {
		n.engine.Stop()
	}
	if n.cancelDisc != nil {
		n.cancelDisc()
	}
	n.disc.Stop()
	n.network.DisconnectAll()
	for i := len(n.lifecycles) - 1; i >= 0; i-- {
		if err := n.lifecycles[i].Stop(); err != nil {
			n.log.Error("lifecycle stop failed", "err", err)
		}
	}
	n.started = false
	return nil
}

// State, Storage, Network and RdPoS expose the node's subsystems to callers
// (e.g. an RPC surface) that need direct access without poking into
// internals.
func (n *Node) State() *state.State       { return n.state }
func (n *Node) Storage() *storage.Storage { return n.storage }
func (n *Node) Network() *p2p.Manager     { return n.network }
func (n *Node) RdPoS() *rdpos.RdPoS       { return n.rdpos }

// dbLifecycle flushes storage's hot window and latest-block pointer to the
// database on shutdown (storage.Shutdown); it does not close the database.
// Kept as a Lifecycle rather than special-cased in Close so the shutdown
// ordering is uniform.
type dbLifecycle struct{ n *Node }

func (d dbLifecycle) Start() error { return nil }
func (d dbLifecycle) Stop() error  { return d.n.storage.Shutdown() }
