// Command gallery-admin inspects and repairs the gallery bucket directly,
// without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/repository"
	"github.com/asafaviv-devops/image-gallery/internal/service"
	"github.com/asafaviv-devops/image-gallery/pkg/logger"
)

type app struct {
	log     *zap.Logger
	gallery service.GalleryService
	out     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A nil gallery is resolved from the
// environment on first use.
func newRootCmd(gallery service.GalleryService) *cobra.Command {
	a := &app{gallery: gallery, log: zap.NewNop(), out: os.Stdout}

	root := &cobra.Command{
		Use:          "gallery-admin",
		Short:        "Maintenance commands for the image gallery bucket",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			if a.gallery != nil {
				return nil
			}
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}

	root.AddCommand(
		a.listCmd(),
		a.getCmd(),
		a.deleteCmd(),
		a.sweepCmd(),
		a.checkCmd(),
	)
	return root
}

func (a *app) connect(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = log.With(zap.String("component", "admin"))

	store, err := repository.New(ctx, &cfg.S3, nil, a.log)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	a.gallery = service.NewGalleryService(store, cfg, a.log)
	return nil
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every readable image record, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			images, err := a.gallery.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list images: %w", err)
			}
			return a.print(images)
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one image record with fresh download links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := a.gallery.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			return a.print(image)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove the image, its thumbnail and its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.gallery.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			return a.print(map[string]string{"deleted": args[0]})
		},
	}
}

func (a *app) sweepCmd() *cobra.Command {
	var (
		grace  time.Duration
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Find (and optionally delete) image objects left without metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orphans, err := a.gallery.SweepOrphans(cmd.Context(), grace, dryRun)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			if orphans == nil {
				orphans = []string{}
			}
			return a.print(map[string]any{
				"dry_run": dryRun,
				"orphans": orphans,
			})
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "ignore objects younger than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "only report orphans, do not delete them")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the bucket and exit non-zero when it is unreachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok := a.gallery.CheckConnection(cmd.Context())
			if err := a.print(map[string]bool{"s3_connection": ok}); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("bucket is unreachable")
			}
			return nil
		},
	}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
