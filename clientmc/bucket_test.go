package clientmc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/transport"
)

// newFakeTransportConn builds a *transport.Conn whose only purpose is to
// exist as a heap object the bucket table can hold a weak reference to;
// it is never Run, so nothing ever reads or writes on it.
func newFakeTransportConn(t *testing.T) *transport.Conn {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck

	conn, err := transport.NewTCPConnectionFactory(nil, nil).Dial(context.Background(), ids.NewEndpoint(l.Addr().String(), 1), nil, nil)
	require.NoError(t, err)
	concrete, ok := conn.(*transport.Conn)
	require.True(t, ok)
	return concrete
}

func TestBucketTableGetMissInitially(t *testing.T) {
	table := newBucketTable(8)
	_, ok := table.get(ids.NewClientId("alice"))
	assert.False(t, ok)
}

func TestBucketTableInstallThenGet(t *testing.T) {
	table := newBucketTable(8)
	actor := ids.NewClientId("alice")
	conn := newFakeTransportConn(t)

	witness := table.observed(actor)
	adopted, installed := table.install(actor, witness, conn)
	assert.True(t, installed)
	assert.Equal(t, conn.ID(), adopted.ID())

	got, ok := table.get(actor)
	require.True(t, ok)
	assert.Equal(t, conn.ID(), got.ID())
}

func TestBucketTableInstallRaceLoserAdoptsWinner(t *testing.T) {
	table := newBucketTable(8)
	actor := ids.NewClientId("alice")
	winner := newFakeTransportConn(t)
	loser := newFakeTransportConn(t)

	witness := table.observed(actor)
	_, installed := table.install(actor, witness, winner)
	require.True(t, installed)

	// loser still has the stale (nil) witness, simulating two goroutines
	// racing to install after both observed an empty slot.
	adopted, installedLoser := table.install(actor, witness, loser)
	assert.False(t, installedLoser)
	assert.Equal(t, winner.ID(), adopted.ID())
}

func TestBucketTableStaleConnectionNotReturned(t *testing.T) {
	table := newBucketTable(8)
	actor := ids.NewClientId("alice")
	conn := newFakeTransportConn(t)

	_, installed := table.install(actor, table.observed(actor), conn)
	require.True(t, installed)

	require.NoError(t, conn.Close(nil))

	_, ok := table.get(actor)
	assert.False(t, ok)
}
