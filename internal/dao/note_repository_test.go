package dao

import (
	"context"
	"sync"
	"testing"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *NoteStore {
	t.Helper()
	db, err := NewDBEngine(DatabaseConfig{Type: DBTypeMemory}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })

	s := NewNoteStore(db)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func TestNoteStore_NotOpened(t *testing.T) {
	db, err := NewDBEngine(DatabaseConfig{Type: DBTypeMemory}, nil)
	require.NoError(t, err)
	defer CloseDB(db)

	s := NewNoteStore(db)
	_, err = s.ReadAllData(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	_, err = s.CreateData(context.Background(), &domain.Note{Color: "#fff"})
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestNoteStore_OpenNilDB(t *testing.T) {
	s := NewNoteStore(nil)
	err := s.Open(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestNoteStore_OpenConcurrent(t *testing.T) {
	db, err := NewDBEngine(DatabaseConfig{Type: DBTypeMemory}, nil)
	require.NoError(t, err)
	defer CloseDB(db)

	s := NewNoteStore(db)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Open(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.NoError(t, s.Open(context.Background()))
}

func TestNoteStore_CreateRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateData(ctx, &domain.Note{Color: "#ff0000", StackOrder: 1})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	notes, err := s.ReadAllData(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n := notes[0]
	assert.Equal(t, id, n.ID)
	assert.Equal(t, "#ff0000", n.Color)
	assert.Equal(t, "", n.Text)
	assert.Equal(t, domain.Position{}, n.Position)
	assert.Equal(t, int64(1), n.StackOrder)
	assert.Equal(t, domain.CurrentSchemaVersion, n.SchemaVersion)
}

func TestNoteStore_UpdatePartial(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateData(ctx, &domain.Note{Color: "#00ff00", Text: "keep", StackOrder: 3, Position: domain.Position{X: 1, Y: 2}})
	require.NoError(t, err)

	pos := domain.Position{X: 40, Y: -7}
	require.NoError(t, s.UpdateData(ctx, id, domain.NotePatch{Position: &pos}))

	notes, err := s.ReadAllData(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, pos, notes[0].Position)
	assert.Equal(t, "keep", notes[0].Text)
	assert.Equal(t, int64(3), notes[0].StackOrder)

	text := ""
	require.NoError(t, s.UpdateData(ctx, id, domain.NotePatch{Text: &text}))
	notes, err = s.ReadAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", notes[0].Text)

	// 空补丁只校验存在性
	assert.NoError(t, s.UpdateData(ctx, id, domain.NotePatch{}))
}

func TestNoteStore_UpdateSameValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateData(ctx, &domain.Note{Color: "#0000ff", Text: "same"})
	require.NoError(t, err)

	text := "same"
	assert.NoError(t, s.UpdateData(ctx, id, domain.NotePatch{Text: &text}))
	assert.NoError(t, s.UpdateData(ctx, id, domain.NotePatch{Text: &text}))
}

func TestNoteStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	text := "x"
	err := s.UpdateData(ctx, 42, domain.NotePatch{Text: &text})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.UpdateData(ctx, 42, domain.NotePatch{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.DeleteData(ctx, 42)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNoteStore_DeleteAndNoReuse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.CreateData(ctx, &domain.Note{Color: "a"})
	require.NoError(t, err)
	id2, err := s.CreateData(ctx, &domain.Note{Color: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, s.DeleteData(ctx, id2))

	notes, err := s.ReadAllData(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, id1, notes[0].ID)

	id3, err := s.CreateData(ctx, &domain.Note{Color: "c"})
	require.NoError(t, err)
	assert.Greater(t, id3, id2)

	err = s.DeleteData(ctx, id2)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNoteStore_MissingStackOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.DB().Exec("INSERT INTO note (x, y, color, text, schema_version, created_at, updated_at) VALUES (5, 6, '#abc', 'legacy', 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)").Error)

	notes, err := s.ReadAllData(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, int64(0), notes[0].StackOrder)
	assert.Equal(t, domain.Position{X: 5, Y: 6}, notes[0].Position)
	assert.Equal(t, 0, notes[0].SchemaVersion)
}

func TestNoteStore_Close(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ReadAllData(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestNewDBEngine_Unsupported(t *testing.T) {
	_, err := NewDBEngine(DatabaseConfig{Type: "oracle"}, nil)
	assert.Error(t, err)
}

func TestNewDBEngine_SqliteFile(t *testing.T) {
	path := t.TempDir() + "/nested/db.sqlite3"
	db, err := NewDBEngine(DatabaseConfig{Type: DBTypeSqlite, Path: path, MaxIdleConns: 2, MaxOpenConns: 2}, nil)
	require.NoError(t, err)
	defer CloseDB(db)

	s := NewNoteStore(db)
	require.NoError(t, s.Open(context.Background()))
	id, err := s.CreateData(context.Background(), &domain.Note{Color: "#123456"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}
