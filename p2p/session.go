package p2p

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rdpos-chain/core/log"
)

var ErrHandshakeFailed = errors.New("p2p: handshake did not complete")

// Session owns one TCP connection after a successful handshake. Reads run on
// the session's own goroutine, started by Start; writes happen synchronously
// in Send, serialized by writeMu so concurrent senders never interleave
// frames.
type Session struct {
	conn net.Conn
	log  log.Logger

	id       NodeID
	nodeType NodeType

	writeMu sync.Mutex // serializes concurrent outbound frames from handleMessage callbacks

	onMessage func(*Session, *Message)
	onClose   func(*Session)

	closeOnce sync.Once
	closed    chan struct{}
}

// handshake performs the 3-byte exchange (node_type(1) || server_port(2 BE))
// in both directions and returns the remote's advertised type/port.
func handshake(conn net.Conn, localType NodeType, localServerPort uint16) (NodeType, uint16, error) {
	out := []byte{byte(localType), byte(localServerPort >> 8), byte(localServerPort)}
	if _, err := conn.Write(out); err != nil {
		return 0, 0, err
	}
	in := make([]byte, 3)
	if _, err := io.ReadFull(conn, in); err != nil {
		return 0, 0, ErrHandshakeFailed
	}
	return NodeType(in[0]), uint16(in[1])<<8 | uint16(in[2]), nil
}

// newSession wraps conn post-handshake. remoteServerPort is the port learned
// from the handshake, not conn.RemoteAddr()'s ephemeral source port.
func newSession(conn net.Conn, remoteType NodeType, remoteServerPort uint16, onMessage func(*Session, *Message), onClose func(*Session)) *Session {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	s := &Session{
		conn:      conn,
		log:       log.New("module", "p2p", "peer", host),
		id:        NodeID{IP: host, Port: remoteServerPort},
		nodeType:  remoteType,
		onMessage: onMessage,
		onClose:   onClose,
		closed:    make(chan struct{}),
	}
	return s
}

// Start launches the session's read loop; write is synchronous and called
// directly by Send.
func (s *Session) Start() {
	go s.readLoop()
}

func (s *Session) ID() NodeID         { return s.id }
func (s *Session) NodeType() NodeType { return s.nodeType }

func (s *Session) readLoop() {
	defer s.Close()
	for {
		frame, err := readFrame(s.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("session read failed", "err", err)
			}
			return
		}
		msg, err := DecodeMessage(frame)
		if err != nil {
			s.log.Debug("dropping malformed frame", "err", err)
			continue
		}
		s.onMessage(s, msg)
	}
}

// Send writes msg as a length-prefixed frame. Safe for concurrent callers.
func (s *Session) Send(msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, msg.Encode())
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *Session) Done() <-chan struct{} { return s.closed }

// readFrame reads an 8-byte big-endian length prefix followed by that many
// bytes, rejecting frames over MaxFrameSize.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
