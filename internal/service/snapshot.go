package service

import (
	"context"
	"sort"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SnapshotNote 快照中的单个便签
type SnapshotNote struct {
	ID         int64           `yaml:"id"`
	Position   domain.Position `yaml:"position"`
	StackOrder int64           `yaml:"stackOrder"`
	Color      string          `yaml:"color"`
	Text       string          `yaml:"text"`
}

// Snapshot 画布快照，用于备份和导入导出
type Snapshot struct {
	Canvas    string         `yaml:"canvas"`
	Version   string         `yaml:"version"`
	CreatedAt time.Time      `yaml:"createdAt"`
	Notes     []SnapshotNote `yaml:"notes"`
}

// NewSnapshot 按层级从低到高生成快照
func NewSnapshot(canvas, version string, notes []*domain.Note) Snapshot {
	s := Snapshot{
		Canvas:    canvas,
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Notes:     make([]SnapshotNote, 0, len(notes)),
	}
	for _, n := range notes {
		if n == nil {
			continue
		}
		s.Notes = append(s.Notes, SnapshotNote{
			ID:         n.ID,
			Position:   n.Position,
			StackOrder: n.StackOrder,
			Color:      n.Color,
			Text:       n.Text,
		})
	}
	sortSnapshotNotes(s.Notes)
	return s
}

func sortSnapshotNotes(notes []SnapshotNote) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].StackOrder != notes[j].StackOrder {
			return notes[i].StackOrder < notes[j].StackOrder
		}
		return notes[i].ID < notes[j].ID
	})
}

// Marshal 编码为 YAML
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal snapshot failed")
	}
	return data, nil
}

// ParseSnapshot 解析 YAML 快照
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, "parse snapshot failed")
	}
	sortSnapshotNotes(s.Notes)
	return s, nil
}

// Import 通过注册表逐个创建快照中的便签
// Ids and stack orders are reassigned; the relative layering of the snapshot is kept.
func (r *NoteRegistry) Import(ctx context.Context, s Snapshot) ([]*domain.Note, error) {
	created := make([]*domain.Note, 0, len(s.Notes))
	for _, sn := range s.Notes {
		n, err := r.CreateNote(ctx, sn.Color)
		if err != nil {
			return created, errors.Wrapf(err, "import note %d", sn.ID)
		}
		if sn.Position != (domain.Position{}) {
			if n, err = r.UpdatePosition(ctx, n.ID, sn.Position); err != nil {
				return created, errors.Wrapf(err, "import note %d position", sn.ID)
			}
		}
		if sn.Text != "" {
			if n, err = r.UpdateText(ctx, n.ID, sn.Text); err != nil {
				return created, errors.Wrapf(err, "import note %d text", sn.ID)
			}
		}
		created = append(created, n)
	}
	return created, nil
}
