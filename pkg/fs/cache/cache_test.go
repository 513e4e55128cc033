package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

func newStrategy(t *testing.T, name string, capacity int) Strategy[*fs.Node] {
	t.Helper()
	s, err := New[*fs.Node](name, capacity, nil)
	require.NoError(t, err)
	return s
}

func node(inode uint32) *fs.Node {
	return &fs.Node{Inode: inode, Kind: fs.KindFile, Version: 1}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New[*fs.Node]("fifo", 8, nil)
	assert.Error(t, err)
}

func TestNewDefaultsToLRU(t *testing.T) {
	s, err := New[*fs.Node]("", 8, nil)
	require.NoError(t, err)
	_, isLRU := s.(*LRU[*fs.Node])
	assert.True(t, isLRU)
}

func TestPutThenGetIsAlwaysAHit(t *testing.T) {
	for _, name := range []string{StrategyLRU, StrategyARC} {
		t.Run(name, func(t *testing.T) {
			s := newStrategy(t, name, 4)

			// Hold even under heavy churn past capacity.
			for i := uint32(1); i <= 100; i++ {
				s.Put(i, node(i))
				got, ok := s.Get(i)
				require.True(t, ok, "miss immediately after put of inode %d", i)
				assert.Equal(t, i, got.Inode)
			}
		})
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	for _, name := range []string{StrategyLRU, StrategyARC} {
		t.Run(name, func(t *testing.T) {
			const capacity = 8
			s := newStrategy(t, name, capacity)

			// Mixed access pattern: sequential puts with periodic re-gets.
			for i := uint32(0); i < 500; i++ {
				s.Put(i, node(i))
				if i%3 == 0 {
					s.Get(i / 2)
				}
				require.LessOrEqual(t, s.Len(), capacity,
					"capacity exceeded after %d puts", i+1)
			}
		})
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	s := newStrategy(t, StrategyLRU, 2)

	s.Put(1, node(1)) // A
	s.Put(2, node(2)) // B
	s.Put(3, node(3)) // C evicts A

	_, ok := s.Get(1)
	assert.False(t, ok, "A should have been evicted")
	_, ok = s.Get(2)
	assert.True(t, ok)
	_, ok = s.Get(3)
	assert.True(t, ok)
}

func TestARCEvictionOrder(t *testing.T) {
	// The adaptive strategy must satisfy the same black-box property at
	// capacity 2 with a cold cache.
	s := newStrategy(t, StrategyARC, 2)

	s.Put(1, node(1))
	s.Put(2, node(2))
	s.Put(3, node(3))

	_, ok := s.Get(1)
	assert.False(t, ok)
	_, ok = s.Get(2)
	assert.True(t, ok)
	_, ok = s.Get(3)
	assert.True(t, ok)
}

func TestLRURecencyPromotion(t *testing.T) {
	s := newStrategy(t, StrategyLRU, 2)

	s.Put(1, node(1))
	s.Put(2, node(2))
	s.Get(1)          // promote 1; now 2 is least recent
	s.Put(3, node(3)) // evicts 2

	_, ok := s.Get(1)
	assert.True(t, ok)
	_, ok = s.Get(2)
	assert.False(t, ok)
}

func TestARCFrequentEntriesSurviveScan(t *testing.T) {
	const capacity = 8
	s := newStrategy(t, StrategyARC, capacity)

	// Build up a frequently-used working set.
	for i := uint32(1); i <= 4; i++ {
		s.Put(i, node(i))
	}
	for round := 0; round < 3; round++ {
		for i := uint32(1); i <= 4; i++ {
			_, ok := s.Get(i)
			require.True(t, ok)
		}
	}

	// A one-shot scan of fresh keys must not flush the hot set.
	for i := uint32(100); i < 100+capacity; i++ {
		s.Put(i, node(i))
	}

	survived := 0
	for i := uint32(1); i <= 4; i++ {
		if _, ok := s.Get(i); ok {
			survived++
		}
	}
	assert.Greater(t, survived, 0, "scan flushed the entire frequent set")
}

func TestRemove(t *testing.T) {
	for _, name := range []string{StrategyLRU, StrategyARC} {
		t.Run(name, func(t *testing.T) {
			s := newStrategy(t, name, 4)

			s.Put(1, node(1))
			s.Remove(1)

			_, ok := s.Get(1)
			assert.False(t, ok)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestStats(t *testing.T) {
	for _, name := range []string{StrategyLRU, StrategyARC} {
		t.Run(name, func(t *testing.T) {
			s := newStrategy(t, name, 4)

			s.Put(1, node(1))
			s.Get(1) // hit
			s.Get(2) // miss
			s.Get(2) // miss

			stats := s.Stats()
			assert.Equal(t, uint64(1), stats.Hits)
			assert.Equal(t, uint64(2), stats.Misses)
			assert.Equal(t, 1, stats.Size)
			assert.InDelta(t, 1.0/3.0, stats.HitRate(), 1e-9)
		})
	}
}

func TestStatsHitRateEmptyCache(t *testing.T) {
	s := newStrategy(t, StrategyLRU, 4)
	assert.Zero(t, s.Stats().HitRate())
}

type countingMetrics struct {
	hits, misses, evictions int
	entries                 int
}

func (m *countingMetrics) ObserveHit()      { m.hits++ }
func (m *countingMetrics) ObserveMiss()     { m.misses++ }
func (m *countingMetrics) ObserveEviction() { m.evictions++ }
func (m *countingMetrics) SetEntries(n int) { m.entries = n }

func TestMetricsHooks(t *testing.T) {
	for _, name := range []string{StrategyLRU, StrategyARC} {
		t.Run(name, func(t *testing.T) {
			m := &countingMetrics{}
			s, err := New[*fs.Node](name, 2, m)
			require.NoError(t, err)

			s.Put(1, node(1))
			s.Put(2, node(2))
			s.Put(3, node(3))
			s.Get(3)
			s.Get(99)

			assert.Equal(t, 1, m.hits)
			assert.Equal(t, 1, m.misses)
			assert.Equal(t, 1, m.evictions)
			assert.Equal(t, 2, m.entries)
		})
	}
}

func BenchmarkStrategies(b *testing.B) {
	for _, name := range []string{StrategyLRU, StrategyARC} {
		b.Run(fmt.Sprintf("strategy=%s", name), func(b *testing.B) {
			s, err := New[*fs.Node](name, 256, nil)
			if err != nil {
				b.Fatal(err)
			}
			n := node(1)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				key := uint32(i % 512)
				if _, ok := s.Get(key); !ok {
					s.Put(key, n)
				}
			}
		})
	}
}
