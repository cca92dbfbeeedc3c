package store

import (
	"context"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testInfo(id string) session.Info {
	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return session.Info{
		ID:          id,
		Fingerprint: session.Fingerprint(id),
		Peer:        netip.MustParseAddrPort("192.0.2.10:40000"),
		FirstSeen:   first,
		LastSeen:    first,
	}
}

func TestOpen_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dnstp.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Health(ctx))
	info := testInfo("client.sarsoo.xyz")
	require.NoError(t, s.RecordSession(ctx, info))
	require.NoError(t, s.Close())

	// Reopening applies the schema again and keeps the data.
	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.GetSession(ctx, info.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, info.ID, rec.ClientID)
}

func TestRecordSession_Upsert(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	info := testInfo("client.sarsoo.xyz")
	require.NoError(t, s.RecordSession(ctx, info))

	again := info
	again.Peer = netip.MustParseAddrPort("[2001:db8::1]:5300")
	again.FirstSeen = info.FirstSeen.Add(time.Hour)
	again.LastSeen = info.FirstSeen.Add(time.Hour)
	require.NoError(t, s.RecordSession(ctx, again))

	rec, err := s.GetSession(ctx, info.Fingerprint)
	require.NoError(t, err)
	assert.True(t, info.FirstSeen.Equal(rec.FirstSeen), "first_seen is kept")
	assert.True(t, again.LastSeen.Equal(rec.LastSeen))
	assert.Equal(t, "[2001:db8::1]:5300", rec.Peer)
}

func TestGetSession_NotFound(t *testing.T) {
	_, err := openMemory(t).GetSession(context.Background(), "0000000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploads(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	tick := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	alice := testInfo("alice.sarsoo.xyz")
	bob := testInfo("bob.sarsoo.xyz")

	// The session row is created on demand.
	require.NoError(t, s.RecordUpload(ctx, alice, protocol.Upload{ClientID: alice.ID, Value: "first"}))
	require.NoError(t, s.RecordUpload(ctx, alice, protocol.Upload{ClientID: alice.ID, Key: "k", HasKey: true, Value: "second"}))
	require.NoError(t, s.RecordUpload(ctx, bob, protocol.Upload{ClientID: bob.ID, Value: "other"}))

	n, err := s.CountUploads(ctx, alice.Fingerprint)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = s.CountUploads(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	ups, err := s.ListUploads(ctx, alice.Fingerprint, 0)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "second", ups[0].Value, "newest first")
	assert.True(t, ups[0].HasKey)
	assert.Equal(t, "k", ups[0].Key)
	assert.Equal(t, "first", ups[1].Value)
	assert.False(t, ups[1].HasKey)
	assert.True(t, ups[0].ReceivedAt.After(ups[1].ReceivedAt))
	_, err = uuid.Parse(ups[0].ID)
	assert.NoError(t, err)

	ups, err = s.ListUploads(ctx, alice.Fingerprint, 1)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "second", ups[0].Value)

	ups, err = s.ListUploads(ctx, "ffffffffffffffff", 0)
	require.NoError(t, err)
	assert.Empty(t, ups)
}
