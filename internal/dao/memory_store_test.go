package dao

import (
	"context"
	"testing"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.ReadAllData(ctx)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	require.NoError(t, s.Open(ctx))

	id1, err := s.CreateData(ctx, &domain.Note{Color: "#ff0000"})
	require.NoError(t, err)
	id2, err := s.CreateData(ctx, &domain.Note{Color: "#00ff00"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	require.NoError(t, s.DeleteData(ctx, id2))
	id3, err := s.CreateData(ctx, &domain.Note{Color: "#0000ff"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id3)

	err = s.DeleteData(ctx, id2)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	text := "hi"
	require.NoError(t, s.UpdateData(ctx, id1, domain.NotePatch{Text: &text}))
	notes, err := s.ReadAllData(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "hi", notes[0].Text)
	assert.Equal(t, "#ff0000", notes[0].Color)
}

func TestMemoryStore_SeedKeepsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(&domain.Note{ID: 7, StackOrder: 4}, &domain.Note{ID: 3, StackOrder: 9})
	require.NoError(t, s.Open(ctx))

	id, err := s.CreateData(ctx, &domain.Note{})
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)
	assert.Equal(t, 3, s.Len())
}

func TestMemoryStore_FailNext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.FailNext(OpOpen, errors.New("disk gone"))
	err := s.Open(ctx)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	require.NoError(t, s.Open(ctx))

	s.FailNext(OpCreate, errors.New("boom"))
	_, err = s.CreateData(ctx, &domain.Note{})
	assert.True(t, errors.Is(err, domain.ErrWrite))
	assert.Equal(t, 0, s.Len())

	// 故障只生效一次
	_, err = s.CreateData(ctx, &domain.Note{})
	assert.NoError(t, err)

	s.FailNext(OpReadAll, errors.New("io"))
	_, err = s.ReadAllData(ctx)
	assert.True(t, errors.Is(err, domain.ErrRead))

	assert.Equal(t, 2, s.CallCount(OpCreate))
}

func TestMemoryStore_Block(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Open(ctx))

	release := s.Block(OpCreate)
	done := make(chan int64, 1)
	go func() {
		id, _ := s.CreateData(ctx, &domain.Note{})
		done <- id
	}()

	select {
	case <-done:
		t.Fatal("create should be blocked")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, s.Waiting(OpCreate))

	release()
	select {
	case id := <-done:
		assert.Equal(t, int64(1), id)
		assert.Equal(t, 0, s.Waiting(OpCreate))
	case <-time.After(time.Second):
		t.Fatal("create not released")
	}
}
