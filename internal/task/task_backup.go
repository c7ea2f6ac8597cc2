package task

import (
	"context"
	"path/filepath"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/service"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/fileurl"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/storage"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BackupTask 定期把画布快照写入 YAML 文件，配置了 backup-storage 时再上传一份
type BackupTask struct {
	app    *app.App
	path   string
	spec   string
	remote storage.Storager
}

// Name returns the task name
func (t *BackupTask) Name() string {
	return "BackupScheduled"
}

func (t *BackupTask) Spec() string {
	return t.spec
}

func (t *BackupTask) IsStartupRun() bool {
	return true
}

// Run 写入快照，文件先写临时文件再替换
func (t *BackupTask) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := service.NewSnapshot(t.app.Config().App.CanvasName, app.Version, t.app.Registry.List())
	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	if err := fileurl.WriteFileAtomic(t.path, data, 0644); err != nil {
		return errors.Wrapf(err, "write backup %s", t.path)
	}
	t.app.Logger().Info("canvas backup written",
		zap.String("path", t.path),
		zap.Int("notes", len(snap.Notes)))

	if t.remote == nil {
		return nil
	}
	key, err := t.remote.SendContent(ctx, filepath.Base(t.path), data, snap.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "upload backup")
	}
	t.app.Logger().Info("canvas backup uploaded", zap.String("key", key))
	return nil
}

// NewBackupTask 创建备份任务，未配置 backup-path 时返回 nil
func NewBackupTask(appContainer *app.App) (Task, error) {
	cfg := appContainer.Config().App
	if cfg.BackupPath == "" {
		return nil, nil
	}
	t := &BackupTask{
		app:  appContainer,
		path: fileurl.Resolve(cfg.BackupPath, ""),
		spec: cfg.BackupSpec,
	}
	if cfg.BackupStorage.Enabled() {
		remote, err := storage.NewClient(&cfg.BackupStorage)
		if err != nil {
			return nil, errors.Wrap(err, "backup storage")
		}
		t.remote = remote
	}
	return t, nil
}

func init() {
	RegisterWithApp(NewBackupTask)
}
