package p2p

import (
	"context"
	"sync"
	"time"

	"github.com/rdpos-chain/core/log"
)

// DiscoveryTick is how often the discovery worker scans for peers due a
// re-query.
const DiscoveryTick = 1 * time.Second

// RequeryCooldown is how long the worker waits before asking the same peer
// for its peer list again.
const RequeryCooldown = 60 * time.Second

// Discovery bootstraps and maintains the Manager's connection set: every
// tick it picks peers not queried recently and asks them for their peer
// lists, dialing whatever new addresses come back, and stops once the
// connection count is within [minConnections, maxConnections]. The very
// first pass queries discovery-type nodes only; every pass after that
// queries normal-type nodes only.
//
// Grounded on p2pmanagerdiscovery.h's discovery loop (periodic scan,
// per-node last-queried timestamp, a one-shot discoveryPass flag gating the
// DISCOVERY-only first pass before falling back to NORMAL-only passes) and
// consensus/bft/reactor.go's stop-channel-driven worker goroutine shape.
type Discovery struct {
	mgr            *Manager
	bootstrap      []Addr
	minConnections int
	maxConnections int
	log            log.Logger

	mu          sync.Mutex
	lastQueried map[NodeID]time.Time
	firstPass   bool

	stop chan struct{}
	done chan struct{}
}

func NewDiscovery(mgr *Manager, bootstrap []Addr, minConnections, maxConnections int) *Discovery {
	return &Discovery{
		mgr:            mgr,
		bootstrap:      bootstrap,
		minConnections: minConnections,
		maxConnections: maxConnections,
		log:            log.New("module", "p2p.discovery"),
		lastQueried:    make(map[NodeID]time.Time),
		firstPass:      true,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start dials every bootstrap address and launches the periodic worker.
func (d *Discovery) Start(ctx context.Context) {
	for _, addr := range d.bootstrap {
		d.dial(ctx, addr)
	}
	go d.run(ctx)
}

// Stop signals the worker to exit and waits for it to finish.
func (d *Discovery) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Discovery) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(DiscoveryTick)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Discovery) tick(ctx context.Context) {
	count := d.mgr.PeerCount()
	if count >= d.minConnections && count <= d.maxConnections {
		return
	}

	peers := d.mgr.Peers()
	due := make([]Addr, 0, len(peers))
	d.mu.Lock()
	for _, p := range peers {
		if time.Since(d.lastQueried[p.NodeID()]) >= RequeryCooldown {
			due = append(due, p)
		}
	}
	d.mu.Unlock()

	// Only the very first pass queries discovery-type peers, the cheapest
	// way to learn about the wider network; every later pass queries
	// normal-type peers only.
	d.mu.Lock()
	firstPass := d.firstPass
	d.firstPass = false
	d.mu.Unlock()

	if firstPass {
		d.queryPass(ctx, due, NodeDiscovery)
		return
	}
	d.queryPass(ctx, due, NodeNormal)
}

func (d *Discovery) queryPass(ctx context.Context, candidates []Addr, want NodeType) {
	for _, c := range candidates {
		if c.Type != want {
			continue
		}
		count := d.mgr.PeerCount()
		if count >= d.minConnections && count <= d.maxConnections {
			return
		}
		sess, ok := d.mgr.Session(c.NodeID())
		if !ok {
			continue
		}
		d.mu.Lock()
		d.lastQueried[c.NodeID()] = time.Now()
		d.mu.Unlock()

		found, err := d.mgr.RequestPeerNodes(ctx, sess)
		if err != nil {
			d.log.Debug("peer list request failed", "peer", c.NodeID(), "err", err)
			continue
		}
		for _, addr := range found {
			if addr.Type == NodeDiscovery {
				continue
			}
			d.dial(ctx, addr)
		}
	}
}

func (d *Discovery) dial(ctx context.Context, addr Addr) {
	if _, ok := d.mgr.Session(addr.NodeID()); ok {
		return
	}
	if _, err := d.mgr.Dial(ctx, addr); err != nil {
		d.log.Debug("dial failed", "addr", addr, "err", err)
	}
}
