package notify

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return conn
}

func TestServer_SubscribeAndNotify(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := NewServer("", nil)
	serverConn := listen(t)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(serverConn) }()

	client := listen(t)
	defer client.Close()
	to := serverConn.LocalAddr().(*net.UDPAddr)

	_, err := client.WriteToUDP([]byte(`{"type":"subscribe"}`), to)
	require.NoError(t, err)
	_, err = client.WriteToUDP([]byte(`{"type":"subscribe","client_id":"ui-1"}`), to)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.DatasetChanged(context.Background(), "liver.csv", []string{"Liver Cancer"})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)

	var msg ChangedMessage
	require.NoError(t, json.Unmarshal(buf[:n], &msg))
	assert.Equal(t, ChangedMessageType, msg.Type)
	assert.Equal(t, "liver.csv", msg.Source)
	assert.Equal(t, []string{"Liver Cancer"}, msg.Categories)

	_, err = client.WriteToUDP([]byte(`{"type":"unsubscribe","client_id":"ui-1"}`), to)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Close())
	require.NoError(t, <-done)
}

func TestServer_NotRunning(t *testing.T) {
	srv := NewServer("", nil)
	srv.Registry.Register("a", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1})

	srv.DatasetChanged(context.Background(), "bone.csv", nil)
	assert.Equal(t, 1, srv.Registry.Len())
	assert.NoError(t, srv.Close())
}

func TestParseSubscribeMessage(t *testing.T) {
	msg, err := parseSubscribeMessage([]byte(`{"type":"subscribe","client_id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", msg.ClientID)

	_, err = parseSubscribeMessage([]byte(`{"client_id":"x"}`))
	assert.Error(t, err)
	_, err = parseSubscribeMessage([]byte(`not json`))
	assert.Error(t, err)
}
