package p2p

import (
	"fmt"
	"net"
)

// NodeType distinguishes a normal validator/RPC-serving peer from a
// discovery-only bootstrap peer. Sent as the first handshake byte.
type NodeType byte

const (
	NodeNormal    NodeType = 0
	NodeDiscovery NodeType = 1
)

func (t NodeType) String() string {
	if t == NodeDiscovery {
		return "discovery"
	}
	return "normal"
}

// NodeID identifies a peer by its remote IP and the server port it
// advertised during the handshake, not by the ephemeral TCP source port the
// dialing side used. Two sessions sharing a NodeID are the same logical
// peer; the registry keeps only the first.
type NodeID struct {
	IP   string
	Port uint16
}

func (id NodeID) String() string { return fmt.Sprintf("%s:%d", id.IP, id.Port) }

// Addr is a dialable peer address plus the type it advertised, the payload
// shape of a RequestNodes answer.
type Addr struct {
	Type NodeType
	IP   net.IP
	Port uint16
}

func (a Addr) NodeID() NodeID { return NodeID{IP: a.IP.String(), Port: a.Port} }

func (a Addr) String() string { return fmt.Sprintf("%s://%s:%d", a.Type, a.IP, a.Port) }

// encodeAddr appends node_type(1) || ip_version(1) || ip(4 or 16) || port(2)
// to out.
func encodeAddr(out []byte, a Addr) []byte {
	out = append(out, byte(a.Type))
	if v4 := a.IP.To4(); v4 != nil {
		out = append(out, 0)
		out = append(out, v4...)
	} else {
		out = append(out, 1)
		out = append(out, a.IP.To16()...)
	}
	out = appendPort(out, a.Port)
	return out
}

func appendPort(out []byte, port uint16) []byte {
	return append(out, byte(port>>8), byte(port))
}

func readPort(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// decodeAddr parses one Addr from the front of b and returns the remaining
// bytes.
func decodeAddr(b []byte) (Addr, []byte, error) {
	if len(b) < 2 {
		return Addr{}, nil, ErrMessageTooShort
	}
	typ := NodeType(b[0])
	ipVersion := b[1]
	b = b[2:]
	var ipLen int
	if ipVersion == 0 {
		ipLen = 4
	} else {
		ipLen = 16
	}
	if len(b) < ipLen+2 {
		return Addr{}, nil, ErrMessageTooShort
	}
	ip := net.IP(append([]byte(nil), b[:ipLen]...))
	b = b[ipLen:]
	port := readPort(b)
	b = b[2:]
	return Addr{Type: typ, IP: ip, Port: port}, b, nil
}

// EncodeNodeList serializes the RequestNodes answer body: a back-to-back
// sequence of encoded Addrs.
func EncodeNodeList(addrs []Addr) []byte {
	out := make([]byte, 0, len(addrs)*19)
	for _, a := range addrs {
		out = encodeAddr(out, a)
	}
	return out
}

// DecodeNodeList parses a RequestNodes answer body.
func DecodeNodeList(b []byte) ([]Addr, error) {
	var addrs []Addr
	for len(b) > 0 {
		a, rest, err := decodeAddr(b)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
		b = rest
	}
	return addrs, nil
}
