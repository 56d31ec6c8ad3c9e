package wal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T, policy ThrottlingPolicy) *BoltLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wal.db")
	l, err := Open(path, policy)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendAssignsMonotonicTicks(t *testing.T) {
	l := openTestLog(t, ThrottlingPolicy{})

	tick1, err := l.Append(Marker{Kind: BeginTransaction, Tx: TxID{Own: 1, Top: 1}})
	require.NoError(t, err)

	tick2, err := l.Append(Marker{Kind: DocumentInsert, Tx: TxID{Own: 1, Top: 1}, Key: "a"})
	require.NoError(t, err)

	assert.Greater(t, tick2, tick1)
	assert.Equal(t, tick2, l.MaxTick())
}

func TestMarkersReplaysInOrder(t *testing.T) {
	l := openTestLog(t, ThrottlingPolicy{})

	_, _ = l.Append(Marker{Kind: BeginTransaction, Tx: TxID{Own: 10, Top: 10}})
	_, _ = l.Append(Marker{Kind: DocumentInsert, Tx: TxID{Own: 10, Top: 10}, Key: "a", RevisionID: 1})
	_, _ = l.Append(Marker{Kind: CommitTransaction, Tx: TxID{Own: 10, Top: 10}})

	it, err := l.Markers(0)
	require.NoError(t, err)
	defer it.Close()

	var kinds []Kind
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		kinds = append(kinds, m.Kind)
	}

	assert.Equal(t, []Kind{BeginTransaction, DocumentInsert, CommitTransaction}, kinds)
}

func TestMarkersFromOffset(t *testing.T) {
	l := openTestLog(t, ThrottlingPolicy{})

	_, _ = l.Append(Marker{Kind: BeginTransaction})
	tick2, _ := l.Append(Marker{Kind: DocumentInsert})
	_, _ = l.Append(Marker{Kind: CommitTransaction})

	it, err := l.Markers(tick2)
	require.NoError(t, err)
	defer it.Close()

	m, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, DocumentInsert, m.Kind)

	m, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, CommitTransaction, m.Kind)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestThrottling(t *testing.T) {
	l := openTestLog(t, ThrottlingPolicy{MaxPendingBytes: 10})
	assert.False(t, l.Throttled())

	_, err := l.Append(Marker{Kind: DocumentInsert, Body: make([]byte, 20)})
	require.NoError(t, err)
	assert.True(t, l.Throttled())

	l.ReleasePending(20)
	assert.False(t, l.Throttled())
}

func TestDatafileRotation(t *testing.T) {
	l := openTestLog(t, ThrottlingPolicy{})
	l.markersPerDatafile = 2

	tick1, _ := l.Append(Marker{Kind: BeginTransaction})
	tick2, _ := l.Append(Marker{Kind: DocumentInsert})
	tick3, _ := l.Append(Marker{Kind: CommitTransaction})

	it, err := l.Markers(0)
	require.NoError(t, err)
	defer it.Close()

	var datafiles []uint32
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		datafiles = append(datafiles, m.DatafileID)
	}

	assert.Equal(t, uint32(tick1/2), datafiles[0])
	assert.Equal(t, uint32(tick2/2), datafiles[1])
	assert.Equal(t, uint32(tick3/2), datafiles[2])
}
