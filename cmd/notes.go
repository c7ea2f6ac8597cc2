package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	internalApp "github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dao"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/service"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/convert"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/fileurl"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openOffline 不启动 HTTP 服务，直接打开存储并重建画布
func openOffline(config string) (*internalApp.App, error) {
	runEnv := &runFlags{config: config}
	if err := resolveConfig(runEnv); err != nil {
		return nil, err
	}
	cfg, _, err := internalApp.LoadConfig(runEnv.config)
	if err != nil {
		return nil, err
	}
	db, err := dao.NewDBEngine(cfg.GetDatabaseConfig(), bootstrapLogger)
	if err != nil {
		return nil, err
	}
	a, err := internalApp.NewApp(cfg, bootstrapLogger, db)
	if err != nil {
		_ = dao.CloseDB(db)
		return nil, err
	}
	return a, nil
}

// preview 单行预览，按字符截断
func preview(text string, limit int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}

func withOfflineApp(config string, fn func(ctx context.Context, a *internalApp.App) error) error {
	a, err := openOffline(config)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	runErr := fn(ctx, a)
	if err := a.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func init() {
	var config string

	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Inspect, export or import the canvas notes",
	}
	notesCmd.PersistentFlags().StringVarP(&config, "config", "c", "", "config file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notes from bottom to top",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(config, func(ctx context.Context, a *internalApp.App) error {
				for _, n := range a.Registry.List() {
					text := preview(n.Text, 40)
					fmt.Printf("%6d  z=%-4d (%d,%d)  %-8s %s\n", n.ID, n.StackOrder, n.Position.X, n.Position.Y, n.Color, text)
				}
				return nil
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one note as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := convert.StrTo(args[0]).Int64()
			if err != nil {
				return errors.Wrapf(err, "invalid note id %q", args[0])
			}
			return withOfflineApp(config, func(ctx context.Context, a *internalApp.App) error {
				n, err := a.Registry.Get(id)
				if err != nil {
					return err
				}
				snap := service.NewSnapshot(a.Config().App.CanvasName, internalApp.Version, []*domain.Note{n})
				data, err := snap.Marshal()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			})
		},
	}

	var output string
	exportCmd := &cobra.Command{
		Use:   "export [-o file]",
		Short: "Export the canvas as a YAML snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(config, func(ctx context.Context, a *internalApp.App) error {
				data, err := service.NewSnapshot(a.Config().App.CanvasName, internalApp.Version, a.Registry.List()).Marshal()
				if err != nil {
					return err
				}
				if output == "" {
					_, err = os.Stdout.Write(data)
					return err
				}
				if err := fileurl.WriteFileAtomic(output, data, 0644); err != nil {
					return errors.Wrap(err, "write snapshot")
				}
				bootstrapLogger.Info("snapshot exported", zap.String("path", output))
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Append the notes of a YAML snapshot to the canvas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read snapshot")
			}
			snap, err := service.ParseSnapshot(data)
			if err != nil {
				return err
			}
			return withOfflineApp(config, func(ctx context.Context, a *internalApp.App) error {
				created, err := a.Registry.Import(ctx, snap)
				if err != nil {
					return err
				}
				if err := a.Registry.Flush(ctx); err != nil {
					return err
				}
				bootstrapLogger.Info("snapshot imported",
					zap.String("canvas", snap.Canvas),
					zap.Int("notes", len(created)))
				return nil
			})
		},
	}

	notesCmd.AddCommand(listCmd, showCmd, exportCmd, importCmd)
	rootCmd.AddCommand(notesCmd)
}
