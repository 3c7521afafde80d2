package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/OCAP2/mocap/internal/api"
	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/export"
	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/internal/video"
	"github.com/OCAP2/mocap/pkg/core"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(a.stdout, "No recordings found")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDURATION\tFRAMES\tSIZE\tCREATED")
			for _, name := range names {
				meta, ok := store.Metadata(name)
				if !ok {
					fmt.Fprintf(tw, "%s\t?\t?\t?\tunreadable\n", name)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					meta.Name, meta.FormattedDuration(), meta.FrameCount, meta.FormattedSize(), meta.FormattedCreatedAt())
			}
			return tw.Flush()
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show metadata and ground footprint of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			name := args[0]
			meta, ok := store.Metadata(name)
			if !ok {
				return fmt.Errorf("%s: %w", name, storage.ErrNotFound)
			}

			fmt.Fprintf(a.stdout, "Name:      %s\n", meta.Name)
			fmt.Fprintf(a.stdout, "Duration:  %s\n", meta.FormattedDuration())
			fmt.Fprintf(a.stdout, "Frames:    %d\n", meta.FrameCount)
			fmt.Fprintf(a.stdout, "Size:      %s\n", meta.FormattedSize())
			fmt.Fprintf(a.stdout, "Created:   %s\n", meta.FormattedCreatedAt())
			fmt.Fprintf(a.stdout, "Format:    v%d\n", meta.FormatVersion)

			rec, err := store.Load(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Joints:    %t\n", rec.HasJoints())
			if _, ok := spatial.GroundTrack(rec); ok {
				fp := spatial.FootprintOf(rec)
				fmt.Fprintf(a.stdout, "Path:      %.2f m\n", fp.PathLength)
				fmt.Fprintf(a.stdout, "Extent:    x [%.2f, %.2f] z [%.2f, %.2f]\n", fp.MinX, fp.MaxX, fp.MinZ, fp.MaxZ)
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>...",
		Short: "Delete recordings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			var errs []error
			for _, name := range args {
				if err := store.Delete(name); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(a.stdout, "Deleted %s\n", name)
			}
			return errors.Join(errs...)
		},
	}
}

func newUsageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show total storage used by recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d recordings, %s\n", len(names), humanize.Bytes(store.TotalStorageUsed()))
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var opts export.Options
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write a recording as a JSON interchange file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := a.exportRecording(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.OutputDir, "out", "o", "./exports", "output directory")
	cmd.Flags().BoolVar(&opts.Compress, "gzip", true, "gzip the export")
	return cmd
}

func (a *app) exportRecording(name string, opts export.Options) (string, core.RecordingMetadata, error) {
	store, err := a.openStorage()
	if err != nil {
		return "", core.RecordingMetadata{}, err
	}
	rec, err := store.Load(name)
	if err != nil {
		return "", core.RecordingMetadata{}, err
	}
	meta, ok := store.Metadata(name)
	if !ok {
		meta = core.MetadataFor(name, rec, 0, time.Time{})
	}
	path, err := export.Write(opts, meta, rec)
	if err != nil {
		return "", meta, err
	}
	a.log.Info("Recording exported", "name", name, "path", path)
	return path, meta, nil
}

// uploadSource reuses the backend's own export of name when it has one,
// otherwise exports into dir.
func (a *app) uploadSource(name, dir string) (string, core.RecordingMetadata, error) {
	store, err := a.openStorage()
	if err != nil {
		return "", core.RecordingMetadata{}, err
	}
	if u, ok := store.(storage.Uploadable); ok {
		um := u.GetExportMetadata()
		path := u.GetExportedFilePath()
		if um.SessionID == name && path != "" {
			if _, err := os.Stat(path); err == nil {
				meta, ok := store.Metadata(name)
				if !ok {
					meta = core.RecordingMetadata{Name: name, Duration: um.Duration, FrameCount: um.FrameCount}
				}
				return path, meta, nil
			}
		}
	}
	return a.exportRecording(name, export.Options{OutputDir: dir, Compress: true})
}

func newUploadCmd(a *app) *cobra.Command {
	var (
		tag     string
		noVideo bool
	)
	cmd := &cobra.Command{
		Use:   "upload <name>",
		Short: "Export a recording and upload it, with its video, to the web frontend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			dir, err := os.MkdirTemp("", "mocap-upload-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			path, meta, err := a.uploadSource(name, dir)
			if err != nil {
				return err
			}

			videoPath := ""
			if !noVideo {
				candidate := filepath.Join(config.GetVideoConfig().OutputFolder, name+video.Extension)
				if _, err := os.Stat(candidate); err == nil {
					videoPath = candidate
				}
			}

			apiCfg := config.GetAPIConfig()
			client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			if err := client.Healthcheck(ctx); err != nil {
				return fmt.Errorf("web frontend unavailable: %w", err)
			}
			err = client.Upload(ctx, path, core.UploadMetadata{
				SessionID:  name,
				Duration:   meta.Duration,
				FrameCount: meta.FrameCount,
				Tag:        tag,
			}, videoPath)
			if err != nil {
				return err
			}
			a.log.Info("Recording uploaded", "name", name, "video", videoPath != "")
			fmt.Fprintf(a.stdout, "Uploaded %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "free-form tag stored with the upload")
	cmd.Flags().BoolVar(&noVideo, "no-video", false, "skip the session video even if present")
	return cmd
}
