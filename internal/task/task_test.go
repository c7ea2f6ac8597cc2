package task

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dao"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/service"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/safe_close"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)

func newTestApp(t *testing.T, yaml string) *app.App {
	t.Helper()
	cfg, err := app.ParseConfig([]byte("database:\n  type: memory\n" + yaml))
	require.NoError(t, err)
	db, err := dao.NewDBEngine(cfg.GetDatabaseConfig(), nil)
	require.NoError(t, err)
	a, err := app.NewApp(cfg, zap.NewNop(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func scrape(t *testing.T, a *app.App) string {
	t.Helper()
	w := httptest.NewRecorder()
	a.Metrics.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestDiffNotes(t *testing.T) {
	memory := []*domain.Note{
		{ID: 1, Position: domain.Position{X: 1}, StackOrder: 1, Color: "#a"},
		{ID: 2, StackOrder: 2, Color: "#b", Text: "mem"},
		{ID: 3, StackOrder: 5, Color: "#c"},
		{ID: 4, StackOrder: 4, Color: "#d"},
	}
	stored := []*domain.Note{
		{ID: 1, Position: domain.Position{X: 1}, StackOrder: 1, Color: "#a"},
		{ID: 2, StackOrder: 2, Color: "#b", Text: "store"},
		{ID: 3, StackOrder: 3, Color: "#c"},
		{ID: 5, StackOrder: 1, Color: "#e"},
	}

	diffs := DiffNotes(memory, stored)
	assert.Equal(t, []NoteDiff{
		{NoteID: 2, Reason: DiffText},
		{NoteID: 3, Reason: DiffStackOrder},
		{NoteID: 4, Reason: DiffMissingInStore},
		{NoteID: 5, Reason: DiffMissingInMemory},
	}, diffs)

	assert.Empty(t, DiffNotes(stored[:1], stored[:1]))
}

func TestConsistencyCheckTask_Run(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")

	n, err := a.Canvas.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = a.Canvas.EditText(ctx, n.ID, "memory")
	require.NoError(t, err)

	tk, err := NewConsistencyCheckTask(a)
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, "@every 5m", tk.Spec())

	require.NoError(t, tk.Run(ctx))
	assert.Contains(t, scrape(t, a), "sticky_canvas_divergent_notes 0")

	// 绕过注册表直接改存储，模拟外部修改
	text := "changed behind the registry"
	require.NoError(t, a.Store.UpdateData(ctx, n.ID, domain.NotePatch{Text: &text}))

	require.NoError(t, tk.Run(ctx))
	assert.Contains(t, scrape(t, a), "sticky_canvas_divergent_notes 1")
}

func TestConsistencyCheckTask_SkipsWhenCanvasChangesDuringRead(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")

	n, err := a.Canvas.CreateNote(ctx, "#fff")
	require.NoError(t, err)

	tk, err := NewConsistencyCheckTask(a)
	require.NoError(t, err)
	check := tk.(*ConsistencyCheckTask)

	// 读取存储前完成一次写入，pending 回到 0 但快照已过期
	check.beforeRead = func() {
		_, err := a.Canvas.EditText(ctx, n.ID, "written between the two reads")
		require.NoError(t, err)
		require.NoError(t, a.Registry.Flush(ctx))
		assert.Equal(t, int64(0), a.Registry.Pending())
	}
	require.NoError(t, check.Run(ctx))
	assert.Contains(t, scrape(t, a), "sticky_canvas_divergent_notes 0")

	check.beforeRead = nil
	require.NoError(t, check.Run(ctx))
	assert.Contains(t, scrape(t, a), "sticky_canvas_divergent_notes 0")

	// 真正的分歧仍然会被发现
	text := "changed behind the registry"
	require.NoError(t, a.Store.UpdateData(ctx, n.ID, domain.NotePatch{Text: &text}))
	require.NoError(t, check.Run(ctx))
	assert.Contains(t, scrape(t, a), "sticky_canvas_divergent_notes 1")
}

func TestConsistencyCheckTask_DisabledWithoutSpec(t *testing.T) {
	a := newTestApp(t, "")
	a.Config().App.ConsistencyCheckSpec = ""
	tk, err := NewConsistencyCheckTask(a)
	require.NoError(t, err)
	assert.Nil(t, tk)
}

func TestBackupTask_WritesSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backup", "canvas.yaml")
	a := newTestApp(t, "app:\n  canvas-name: board\n  backup-path: "+path+"\n")

	_, err := a.Canvas.CreateNote(ctx, "#111")
	require.NoError(t, err)
	_, err = a.Canvas.CreateNote(ctx, "#222")
	require.NoError(t, err)

	tk, err := NewBackupTask(a)
	require.NoError(t, err)
	require.NotNil(t, tk)
	require.NoError(t, tk.Run(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	snap, err := service.ParseSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, "board", snap.Canvas)
	require.Len(t, snap.Notes, 2)
	assert.Equal(t, "#111", snap.Notes[0].Color)
}

func TestBackupTask_UploadsToStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canvas.yaml")
	remote := filepath.Join(dir, "remote")
	a := newTestApp(t, "app:\n  backup-path: "+path+"\n  backup-storage:\n    type: localfs\n    custom-path: boards\n    save-path: "+remote+"\n")

	_, err := a.Canvas.CreateNote(context.Background(), "#333")
	require.NoError(t, err)

	tk, err := NewBackupTask(a)
	require.NoError(t, err)
	require.NoError(t, tk.Run(context.Background()))

	local, err := os.ReadFile(path)
	require.NoError(t, err)
	uploaded, err := os.ReadFile(filepath.Join(remote, "boards", "canvas.yaml"))
	require.NoError(t, err)
	assert.Equal(t, local, uploaded)
}

func TestBackupTask_InvalidStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	a := newTestApp(t, "app:\n  backup-path: "+path+"\n  backup-storage:\n    type: tape\n")
	_, err := NewBackupTask(a)
	assert.Error(t, err)
}

func TestBackupTask_DisabledWithoutPath(t *testing.T) {
	a := newTestApp(t, "")
	tk, err := NewBackupTask(a)
	require.NoError(t, err)
	assert.Nil(t, tk)
}

type countingTask struct {
	name   string
	spec   string
	runs   atomic.Int32
	err    error
	panics bool
}

func (c *countingTask) Name() string       { return c.name }
func (c *countingTask) Spec() string       { return c.spec }
func (c *countingTask) IsStartupRun() bool { return true }
func (c *countingTask) Run(ctx context.Context) error {
	c.runs.Add(1)
	if c.panics {
		panic("boom")
	}
	return c.err
}

type observed struct {
	names []string
	errs  []error
}

func (o *observed) ObserveTask(task string, err error) {
	o.names = append(o.names, task)
	o.errs = append(o.errs, err)
}

func TestScheduler_RunOnce(t *testing.T) {
	obs := &observed{}
	s := NewScheduler(nil, nil, nil, obs)

	ok := &countingTask{name: "ok"}
	failing := &countingTask{name: "failing", err: errors.New("nope")}
	panicking := &countingTask{name: "panicking", panics: true}

	assert.NoError(t, s.RunOnce(ok))
	assert.Error(t, s.RunOnce(failing))
	assert.Error(t, s.RunOnce(panicking))

	assert.Equal(t, []string{"ok", "failing", "panicking"}, obs.names)
	assert.Nil(t, obs.errs[0])
	assert.NotNil(t, obs.errs[2])
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil)
	err := s.AddTask(&countingTask{name: "bad", spec: "every tuesday"})
	assert.Error(t, err)
	assert.Empty(t, s.Tasks())

	require.NoError(t, s.AddTask(&countingTask{name: "good", spec: "@every 1h"}))
	require.NoError(t, s.AddTask(&countingTask{name: "cron", spec: "*/5 * * * *"}))
	assert.Len(t, s.Tasks(), 2)
}

func TestScheduler_StartupRunAndStop(t *testing.T) {
	sc := safe_close.NewSafeClose()
	var submitted atomic.Int32
	submit := func(ctx context.Context, fn func(context.Context) error) error {
		submitted.Add(1)
		return fn(ctx)
	}
	s := NewScheduler(zap.NewNop(), sc, submit, nil)

	tk := &countingTask{name: "startup", spec: "@every 1h"}
	require.NoError(t, s.AddTask(tk))
	s.Start()

	assert.Eventually(t, func() bool { return tk.runs.Load() == 1 }, timeoutShort, tick)
	assert.Equal(t, int32(1), submitted.Load())

	sc.SendCloseSignal(nil)
	assert.NoError(t, sc.WaitClosed())
}

func TestManager_RegistersConfiguredTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	a := newTestApp(t, "app:\n  backup-path: "+path+"\n")

	m := NewManager(a, safe_close.NewSafeClose())
	require.NoError(t, m.RegisterTasks())

	names := map[string]bool{}
	for _, tk := range m.Scheduler().Tasks() {
		names[tk.Name()] = true
	}
	assert.True(t, names["ConsistencyCheck"])
	assert.True(t, names["BackupScheduled"])
}
