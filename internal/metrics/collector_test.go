package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorEmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Nil(t, snap.Turn)
	assert.Nil(t, snap.PersistSave)
}

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpPersistSave, 10*time.Millisecond, nil)
	c.RecordTiming(OpPersistSave, 30*time.Millisecond, errors.New("disk full"))

	snap := c.Snapshot()
	require.NotNil(t, snap.PersistSave)
	assert.Equal(t, int64(2), snap.PersistSave.Count)
	assert.Equal(t, int64(1), snap.PersistSave.Errors)
	assert.Equal(t, int64(40), snap.PersistSave.TotalTimeMs)
	assert.Equal(t, int64(10), snap.PersistSave.MinTimeMs)
	assert.Equal(t, int64(30), snap.PersistSave.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.PersistSave.AvgTimeMs, 0.001)
	assert.Nil(t, snap.PersistSave.TotalInputTokens)
}

func TestCollectorRecordTurn(t *testing.T) {
	c := NewCollector()
	c.RecordTurn(time.Second, false, 100, 20, 5, true)
	c.RecordTurn(2*time.Second, false, 300, 40, 0, true)
	c.RecordTurn(time.Second, true, 0, 0, 0, false)

	snap := c.Snapshot()
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(3), snap.Turn.Count)
	assert.Equal(t, int64(1), snap.Turn.Errors)
	require.NotNil(t, snap.Turn.TotalInputTokens)
	assert.Equal(t, int64(400), *snap.Turn.TotalInputTokens)
	assert.Equal(t, int64(60), *snap.Turn.TotalOutputTokens)
	assert.Equal(t, int64(5), *snap.Turn.TotalCachedTokens)
	assert.Equal(t, int64(100), *snap.Turn.MinInputTokens)
	assert.Equal(t, int64(300), *snap.Turn.MaxInputTokens)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpTurn, time.Second, nil)
	c.RecordTurn(time.Second, false, 1, 1, 0, true)
	assert.Equal(t, Snapshot{}, c.Snapshot())
}
