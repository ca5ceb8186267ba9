package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
}

func TestInsertAndList(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	records := []Record{
		{SessionID: "a", Timestamp: 1000, FilePath: "/x/1.jpg", FileSize: 10, Width: 4, Height: 3, PHash: 1<<63 | 5},
		{SessionID: "a", Timestamp: 2000, Error: "no display"},
		{SessionID: "b", Timestamp: 1500, FilePath: "/x/2.jpg"},
	}
	require.NoError(t, j.Insert(ctx, records))

	got, err := j.List(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(2000), got[0].Timestamp)
	assert.True(t, got[0].Failed())
	assert.Equal(t, "no display", got[0].Error)
	assert.Empty(t, got[0].FilePath)

	assert.Equal(t, "/x/1.jpg", got[1].FilePath)
	assert.Equal(t, uint64(1<<63|5), got[1].PHash)
	assert.Equal(t, 4, got[1].Width)
	assert.False(t, got[1].Failed())

	all, err := j.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := j.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(2000), limited[0].Timestamp)
}

func TestInsert_Empty(t *testing.T) {
	j := openTemp(t)
	assert.NoError(t, j.Insert(context.Background(), nil))
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Insert(ctx, []Record{
		{SessionID: "s", Timestamp: now.Add(-48 * time.Hour).UnixMilli()},
		{SessionID: "s", Timestamp: now.Add(-time.Hour).UnixMilli()},
	}))

	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := j.List(ctx, "s", 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Insert(ctx, []Record{{SessionID: "s", Timestamp: 1}}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.List(ctx, "s", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type mockSink struct {
	mu    sync.Mutex
	calls [][]Record
	err   error
}

func (m *mockSink) Insert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, records)
	return m.err
}

func (m *mockSink) getCalls() [][]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestBatcher_FlushOnMaxSize(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 2, time.Hour)

	b.Add(Record{SessionID: "a"})
	b.Add(Record{SessionID: "b"})
	b.Stop()

	calls := sink.getCalls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)
}

func TestBatcher_FlushOnTimer(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 100, 20*time.Millisecond)
	defer b.Stop()

	b.Add(Record{SessionID: "a"})
	assert.Eventually(t, func() bool { return len(sink.getCalls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 100, time.Hour)

	b.Add(Record{SessionID: "a"})
	b.Stop()
	require.Len(t, sink.getCalls(), 1)

	b.Add(Record{SessionID: "late"})
	b.Flush()
	assert.Len(t, sink.getCalls(), 1, "records after Stop are dropped")
}

func TestBatcher_NonRetryableFailureIsSwallowed(t *testing.T) {
	sink := &mockSink{err: errors.New("constraint")}
	b := NewBatcher(sink, 1, time.Hour)

	b.Add(Record{SessionID: "a"})
	b.Stop()

	assert.Len(t, sink.getCalls(), 1, "plain errors are not retried")
}

func TestBatcher_WritesToJournal(t *testing.T) {
	j := openTemp(t)
	b := NewBatcher(j, 10, time.Hour)

	b.Add(Record{SessionID: "s", Timestamp: 1, FilePath: "/a.png"})
	b.Add(Record{SessionID: "s", Timestamp: 2, Error: "boom"})
	b.Stop()

	got, err := j.List(context.Background(), "s", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBatcher_HealthTracksBreaker(t *testing.T) {
	sink := &mockSink{err: errors.New("constraint")}
	b := NewBatcher(sink, 1, time.Hour)
	assert.Equal(t, "closed", b.Health().State)

	for i := 0; i < 3; i++ {
		b.Add(Record{SessionID: "a"})
	}
	b.Stop()

	h := b.Health()
	assert.Equal(t, "journal", h.Name)
	assert.Equal(t, "open", h.State)
	assert.Equal(t, "constraint", h.LastError)
}
