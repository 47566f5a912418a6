package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetentionPrunesOldSamples(t *testing.T) {
	s := NewStore(WithRetention(10 * time.Millisecond))
	s.RecordSample("a", Sample{Timestamp: time.Now().Add(-time.Hour)})
	s.RecordSample("a", Sample{Timestamp: time.Now()})

	sum := s.SummarizeUnit("a")
	require.Equal(t, 1, sum.Samples)
}

func TestMemoryBudgetEnforced(t *testing.T) {
	s := NewStore(WithMaxBytes(approxSampleBytes*3), WithRetention(time.Hour))
	for i := 0; i < 10; i++ {
		s.RecordSample("a", Sample{Timestamp: time.Now(), CPUPercent: float64(i)})
	}
	require.LessOrEqual(t, s.totalBytesLocked(), approxSampleBytes*3)
}

func TestSummarizeUnitAggregates(t *testing.T) {
	s := NewStore()
	s.RecordSample("a", Sample{Timestamp: time.Now(), CPUPercent: 10, RSSBytes: 100})
	s.RecordSample("a", Sample{Timestamp: time.Now(), CPUPercent: 20, RSSBytes: 200})

	sum := s.SummarizeUnit("a")
	require.Equal(t, 2, sum.Samples)
	require.Equal(t, 20.0, sum.LatestCPU)
	require.Equal(t, 15.0, sum.AvgCPU)
	require.Equal(t, 20.0, sum.MaxCPU)
	require.EqualValues(t, 200, sum.LatestRSS)
}
