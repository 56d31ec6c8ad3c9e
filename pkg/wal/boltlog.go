package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/metrics"
	bolt "go.etcd.io/bbolt"
	"github.com/rs/zerolog"
)

var bucketMarkers = []byte("markers")

// defaultMarkersPerDatafile mirrors real datafile rotation: once this
// many markers have been appended, subsequent markers belong to the
// next logical datafile, per spec.md §4.7's per-datafile statistics.
const defaultMarkersPerDatafile = 1000

// BoltLog is a bbolt-backed Log: one bucket, keyed by big-endian tick,
// storing JSON-encoded markers, in the same bucket-per-concern, Update/
// View transaction pattern the teacher's BoltStore uses.
type BoltLog struct {
	db                 *bolt.DB
	policy             ThrottlingPolicy
	markersPerDatafile uint32
	pendingBytes       atomic.Int64
	maxTick            atomic.Uint64
	closed             atomic.Bool
	logger             zerolog.Logger
}

// Open creates or opens a bbolt-backed WAL at path.
func Open(path string, policy ThrottlingPolicy) (*BoltLog, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMarkers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("wal: create bucket: %w", err)
	}

	l := &BoltLog{
		db:                 db,
		policy:             policy,
		markersPerDatafile: defaultMarkersPerDatafile,
		logger:             log.WithComponent("wal"),
	}

	if err := l.loadMaxTick(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

func (l *BoltLog) loadMaxTick() error {
	return l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMarkers)
		c := b.Cursor()
		k, _ := c.Last()
		if k == nil {
			return nil
		}
		l.maxTick.Store(binary.BigEndian.Uint64(k))
		return nil
	})
}

func (l *BoltLog) Append(marker Marker) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}

	tick := l.maxTick.Add(1)
	marker.Tick = tick
	marker.DatafileID = uint32(tick / uint64(l.markersPerDatafile))

	data, err := json.Marshal(marker)
	if err != nil {
		return 0, fmt.Errorf("wal: marshal marker: %w", err)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, tick)

	err = l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMarkers)
		return b.Put(key, data)
	})
	if err != nil {
		return 0, fmt.Errorf("wal: append: %w", err)
	}

	l.pendingBytes.Add(int64(len(marker.Body)))
	l.logger.Debug().Uint64("tick", tick).Str("kind", marker.Kind.String()).Msg("marker appended")

	metrics.WALMarkersAppendedTotal.WithLabelValues(marker.Kind.String()).Inc()
	metrics.WALPendingBytes.Set(float64(l.pendingBytes.Load()))
	if l.Throttled() {
		metrics.WALThrottled.Set(1)
	} else {
		metrics.WALThrottled.Set(0)
	}

	return tick, nil
}

// ReleasePending reduces the tracked backlog by n bytes, simulating a
// downstream flush/compaction cycle clearing WAL back-pressure.
func (l *BoltLog) ReleasePending(n int64) {
	for {
		cur := l.pendingBytes.Load()
		next := cur - n
		if next < 0 {
			next = 0
		}
		if l.pendingBytes.CompareAndSwap(cur, next) {
			metrics.WALPendingBytes.Set(float64(next))
			if l.Throttled() {
				metrics.WALThrottled.Set(1)
			} else {
				metrics.WALThrottled.Set(0)
			}
			return
		}
	}
}

func (l *BoltLog) Throttled() bool {
	return l.policy.shouldThrottle(l.pendingBytes.Load())
}

func (l *BoltLog) MaxTick() uint64 {
	return l.maxTick.Load()
}

func (l *BoltLog) Markers(from uint64) (Iterator, error) {
	var markers []Marker

	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMarkers)
		c := b.Cursor()

		start := make([]byte, 8)
		binary.BigEndian.PutUint64(start, from)

		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			var m Marker
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("wal: decode marker at tick %d: %w", binary.BigEndian.Uint64(k), err)
			}
			markers = append(markers, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &sliceIterator{markers: markers}, nil
}

func (l *BoltLog) Close() error {
	l.closed.Store(true)
	return l.db.Close()
}

type sliceIterator struct {
	markers []Marker
	pos     int
}

func (it *sliceIterator) Next() (Marker, bool) {
	if it.pos >= len(it.markers) {
		return Marker{}, false
	}
	m := it.markers[it.pos]
	it.pos++
	return m, true
}

func (it *sliceIterator) Close() error {
	return nil
}
