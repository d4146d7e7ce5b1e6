package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/log"
	"github.com/rdpos-chain/core/txs"
)

// RequestTimeout bounds how long a blocking request method waits for a
// matching Answer before giving up.
const RequestTimeout = 2 * time.Second

var (
	ErrAlreadyConnected = errors.New("p2p: peer already registered, keeping the first session")
	ErrRequestTimedOut  = errors.New("p2p: no answer within the timeout")
)

// ChainTip is the narrow view of the chain Manager needs to answer Info
// requests, grounded on storage.Storage's own Latest method so Manager never
// imports storage directly (avoiding a storage<->p2p import cycle at the
// node composition root).
type ChainTip interface {
	Latest() *block.Block
}

// Validators is the narrow view of rdPoS Manager needs to admit inbound
// commit/reveal votes and answer RequestValidatorTxs.
type Validators interface {
	AddValidatorTx(tx *txs.TxValidator) (bool, error)
	PendingVotes() []*txs.TxValidator
}

// Mempool is the narrow view of state Manager needs to admit an inbound
// broadcast TxBlock.
type Mempool interface {
	ValidateTxForRPC(tx *txs.TxBlock) error
}

// BlockSink is the narrow view of state Manager needs to admit an inbound
// broadcast block.
type BlockSink interface {
	ValidateNextBlock(blk *block.Block) error
	ProcessNextBlock(blk *block.Block) error
}

// Manager owns every live Session, the pending request/answer correlation
// table, and the broadcast-fingerprint dedup set. Grounded on
// p2pmanager.h's Manager: a random self nodeId_, sessions_/requests_ behind
// separate shared_mutex-equivalents, registerSession/unregisterSession with
// duplicate-rejection, and blocking public request methods.
type Manager struct {
	selfType   NodeType
	serverPort uint16
	log        log.Logger

	chain      ChainTip
	validators Validators
	mempool    Mempool
	blocks     BlockSink

	sessMu   sync.RWMutex
	sessions map[NodeID]*Session

	reqMu    sync.Mutex
	requests map[[8]byte]chan *Message

	seenMu sync.Mutex
	seen   map[[8]byte]struct{}

	listener net.Listener
	wg       sync.WaitGroup
}

// NewManager builds a Manager for a node listening on serverPort, of kind
// selfType. The chain/validators/mempool/blocks collaborators may be nil on
// a pure discovery node, which never needs to answer domain queries.
func NewManager(selfType NodeType, serverPort uint16, chain ChainTip, validators Validators, mempool Mempool, blocks BlockSink) *Manager {
	return &Manager{
		selfType:   selfType,
		serverPort: serverPort,
		log:        log.New("module", "p2p"),
		chain:      chain,
		validators: validators,
		mempool:    mempool,
		blocks:     blocks,
		sessions:   make(map[NodeID]*Session),
		requests:   make(map[[8]byte]chan *Message),
		seen:       make(map[[8]byte]struct{}),
	}
}

// Listen starts accepting inbound connections on addr (e.g. ":30303").
func (m *Manager) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.listener = ln
	m.wg.Add(1)
	go m.acceptLoop()
	return nil
}

// ListenAddr returns the address the Manager is actually listening on,
// useful when Listen was given port 0.
func (m *Manager) ListenAddr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.acceptSession(conn)
	}
}

func (m *Manager) acceptSession(conn net.Conn) {
	remoteType, remotePort, err := handshake(conn, m.selfType, m.serverPort)
	if err != nil {
		m.log.Debug("inbound handshake failed", "err", err)
		_ = conn.Close()
		return
	}
	m.adopt(conn, remoteType, remotePort)
}

// Dial connects out to addr, performs the handshake, and registers the
// resulting Session.
func (m *Manager) Dial(ctx context.Context, addr Addr) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr.IP, addr.Port))
	if err != nil {
		return nil, err
	}
	remoteType, remotePort, err := handshake(conn, m.selfType, m.serverPort)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return m.adopt(conn, remoteType, remotePort)
}

// adopt registers a post-handshake connection as a Session, closing it
// instead if its NodeID is already connected (first session wins).
func (m *Manager) adopt(conn net.Conn, remoteType NodeType, remotePort uint16) (*Session, error) {
	sess := newSession(conn, remoteType, remotePort, m.handleMessage, m.unregister)
	if !m.register(sess) {
		_ = conn.Close()
		return nil, ErrAlreadyConnected
	}
	sess.Start()
	return sess, nil
}

func (m *Manager) register(sess *Session) bool {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()
	if _, exists := m.sessions[sess.id]; exists {
		return false
	}
	m.sessions[sess.id] = sess
	return true
}

func (m *Manager) unregister(sess *Session) {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()
	if cur, ok := m.sessions[sess.id]; ok && cur == sess {
		delete(m.sessions, sess.id)
	}
}

// Session returns the registered session for id, if any.
func (m *Manager) Session(id NodeID) (*Session, bool) {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Peers returns a snapshot of every connected peer's NodeID and NodeType.
func (m *Manager) Peers() []Addr {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	out := make([]Addr, 0, len(m.sessions))
	for id, sess := range m.sessions {
		out = append(out, Addr{Type: sess.NodeType(), IP: net.ParseIP(id.IP), Port: id.Port})
	}
	return out
}

// PeerCount reports the number of currently connected sessions.
func (m *Manager) PeerCount() int {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	return len(m.sessions)
}

// DisconnectAll closes every session and stops accepting new ones.
func (m *Manager) DisconnectAll() {
	if m.listener != nil {
		_ = m.listener.Close()
	}
	m.sessMu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessMu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	m.wg.Wait()
}

// handleMessage dispatches an inbound Message: requests are answered
// in-line, answers are routed to whatever goroutine is waiting on that
// request id, broadcasts are deduped then handled and reflooded.
func (m *Manager) handleMessage(sess *Session, msg *Message) {
	switch msg.Type {
	case TypeAnswer:
		m.deliverAnswer(msg)
	case TypeRequest:
		m.handleRequest(sess, msg)
	case TypeBroadcast:
		m.handleBroadcast(sess, msg)
	}
}

func (m *Manager) deliverAnswer(msg *Message) {
	m.reqMu.Lock()
	ch, ok := m.requests[msg.RequestID]
	m.reqMu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (m *Manager) handleRequest(sess *Session, req *Message) {
	var body []byte
	switch req.Command {
	case CommandPing:
		body = nil
	case CommandInfo:
		if m.chain == nil {
			return
		}
		tip := m.chain.Latest()
		hash, _ := tip.Hash()
		body = EncodeInfo(Info{Version: ProtocolVersion, EpochMicros: uint64(time.Now().UnixMicro()), LatestHeight: tip.Header.NHeight, LatestHash: hash})
	case CommandRequestNodes:
		body = EncodeNodeList(m.Peers())
	case CommandRequestValidatorTxs:
		if m.validators == nil {
			return
		}
		body = EncodeValidatorTxs(m.validators.PendingVotes())
	default:
		m.log.Debug("unhandled request command", "command", req.Command)
		return
	}
	if err := sess.Send(NewAnswer(req, body)); err != nil {
		m.log.Debug("failed to answer request", "err", err)
	}
}

func (m *Manager) handleBroadcast(sess *Session, msg *Message) {
	m.seenMu.Lock()
	if _, ok := m.seen[msg.RequestID]; ok {
		m.seenMu.Unlock()
		return
	}
	m.seen[msg.RequestID] = struct{}{}
	m.seenMu.Unlock()

	if !m.admitBroadcast(msg) {
		return
	}
	m.Rebroadcast(msg, sess)
}

// admitBroadcast applies local admission rules per command before the
// message is allowed to propagate further.
func (m *Manager) admitBroadcast(msg *Message) bool {
	switch msg.Command {
	case CommandBroadcastValidatorTx:
		if m.validators == nil {
			return false
		}
		tx, err := txs.DecodeTxValidator(msg.Body)
		if err != nil {
			return false
		}
		ok, err := m.validators.AddValidatorTx(tx)
		return err == nil && ok
	case CommandBroadcastTx:
		if m.mempool == nil {
			return false
		}
		tx, err := txs.DecodeTxBlock(msg.Body, txs.DecodeNetwork)
		if err != nil {
			return false
		}
		return m.mempool.ValidateTxForRPC(tx) == nil
	case CommandBroadcastBlock:
		if m.blocks == nil {
			return false
		}
		blk, err := block.DeserializeBlock(msg.Body, txs.DecodeNetwork)
		if err != nil {
			return false
		}
		if err := m.blocks.ValidateNextBlock(blk); err != nil {
			m.log.Debug("rejected broadcast block", "err", err)
			return false
		}
		if err := m.blocks.ProcessNextBlock(blk); err != nil {
			m.log.Error("failed to process validated broadcast block", "err", err)
			return false
		}
		return true
	default:
		return false
	}
}

// Rebroadcast reflows msg to every connected peer except from (the peer it
// arrived from, if any).
func (m *Manager) Rebroadcast(msg *Message, from *Session) {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	for _, s := range m.sessions {
		if s == from {
			continue
		}
		_ = s.Send(msg)
	}
}

// Broadcast originates a new Broadcast message (this node made the tx/block,
// rather than relaying one) and floods it to every peer.
func (m *Manager) Broadcast(cmd CommandType, body []byte) {
	msg := NewBroadcast(cmd, body)
	m.seenMu.Lock()
	m.seen[msg.RequestID] = struct{}{}
	m.seenMu.Unlock()
	m.Rebroadcast(msg, nil)
}

// request sends a Request-type message to sess and blocks for its Answer,
// honoring ctx and the fixed RequestTimeout, whichever elapses first.
func (m *Manager) request(ctx context.Context, sess *Session, cmd CommandType, body []byte) (*Message, error) {
	req := NewRequest(cmd, body)
	ch := make(chan *Message, 1)
	m.reqMu.Lock()
	m.requests[req.RequestID] = ch
	m.reqMu.Unlock()
	defer func() {
		m.reqMu.Lock()
		delete(m.requests, req.RequestID)
		m.reqMu.Unlock()
	}()

	if err := sess.Send(req); err != nil {
		return nil, err
	}

	timeout, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	select {
	case answer := <-ch:
		return answer, nil
	case <-timeout.Done():
		return nil, ErrRequestTimedOut
	}
}

// Ping sends a Ping request and waits for any Answer, reporting reachability.
func (m *Manager) Ping(ctx context.Context, sess *Session) error {
	_, err := m.request(ctx, sess, CommandPing, nil)
	return err
}

// RequestInfo queries sess's chain tip.
func (m *Manager) RequestInfo(ctx context.Context, sess *Session) (Info, error) {
	answer, err := m.request(ctx, sess, CommandInfo, nil)
	if err != nil {
		return Info{}, err
	}
	return DecodeInfo(answer.Body)
}

// RequestPeerNodes queries sess's known peer list.
func (m *Manager) RequestPeerNodes(ctx context.Context, sess *Session) ([]Addr, error) {
	answer, err := m.request(ctx, sess, CommandRequestNodes, nil)
	if err != nil {
		return nil, err
	}
	return DecodeNodeList(answer.Body)
}

// RequestValidatorTxs queries sess's validator mempool.
func (m *Manager) RequestValidatorTxs(ctx context.Context, sess *Session) ([]*txs.TxValidator, error) {
	answer, err := m.request(ctx, sess, CommandRequestValidatorTxs, nil)
	if err != nil {
		return nil, err
	}
	return DecodeValidatorTxs(answer.Body)
}

// BroadcastValidatorTx originates a commit or reveal vote.
func (m *Manager) BroadcastValidatorTx(tx *txs.TxValidator) {
	m.Broadcast(CommandBroadcastValidatorTx, txs.EncodeTxValidator(tx))
}

// BroadcastTx originates a new pending TxBlock.
func (m *Manager) BroadcastTx(tx *txs.TxBlock) {
	m.Broadcast(CommandBroadcastTx, txs.EncodeTxBlock(tx, txs.DecodeNetwork))
}

// BroadcastBlock originates a newly finalized block.
func (m *Manager) BroadcastBlock(blk *block.Block) {
	m.Broadcast(CommandBroadcastBlock, block.SerializeBlock(blk, txs.DecodeNetwork))
}
