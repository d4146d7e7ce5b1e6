package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandshakeExchangesTypeAndPort(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var clientType, serverType NodeType
	var clientPort, serverPort uint16
	var clientErr, serverErr error
	done := make(chan struct{})

	go func() {
		serverType, serverPort, serverErr = handshake(server, NodeNormal, 40000)
		close(done)
	}()
	clientType, clientPort, clientErr = handshake(client, NodeDiscovery, 50000)
	<-done

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.Equal(t, NodeNormal, clientType)
	require.Equal(t, uint16(40000), clientPort)
	require.Equal(t, NodeDiscovery, serverType)
	require.Equal(t, uint16(50000), serverPort)
}

func TestFrameWriteReadRoundtrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("a wire message payload")
	errCh := make(chan error, 1)
	go func() { errCh <- writeFrame(client, payload) }()

	got, err := readFrame(server)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var lenBuf [8]byte
		lenBuf[0] = 0xFF // absurdly large length prefix
		_, _ = client.Write(lenBuf[:])
	}()

	_, err := readFrame(server)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestSessionSendAndReceiveMessage(t *testing.T) {
	client, server := net.Pipe()

	received := make(chan *Message, 1)
	srvSess := newSession(server, NodeNormal, 1, func(_ *Session, m *Message) { received <- m }, func(*Session) {})
	srvSess.Start()
	defer srvSess.Close()

	cliSess := newSession(client, NodeNormal, 2, func(*Session, *Message) {}, func(*Session) {})

	msg := NewRequest(CommandPing, nil)
	require.NoError(t, cliSess.Send(msg))

	select {
	case got := <-received:
		require.Equal(t, CommandPing, got.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
