package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"registrar/internal/config"
	"registrar/internal/export"
	"registrar/internal/logging"
	"registrar/internal/photo"
	"registrar/internal/registration"
	"registrar/internal/store"
)

// env is what every subcommand needs once config is loaded.
type env struct {
	cfg   config.App
	log   *zap.Logger
	store store.Store
}

// close releases whatever PersistentPreRunE opened. Cobra skips post-run
// hooks when a command fails, so callers defer this instead.
func (e *env) close() {
	if e.log != nil {
		_ = e.log.Sync()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "registrarctl",
		Short:         "Operate the registration store outside the HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Production())
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.StoreOptions())
			if err != nil {
				log.Error("open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
				return err
			}
			e.cfg, e.log, e.store = cfg, log, st
			return nil
		},
	}
	root.AddCommand(migrateCmd(e), exportExcelCmd(e), downloadPhotosCmd(e), listCmd(e))
	return root
}

func migrateCmd(e *env) *cobra.Command {
	var reset, yes bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the registrations table or collection if absent",
		Long: "Create the registrations table or collection if absent.\n" +
			"--reset drops every stored registration first and requires --yes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reset {
				if !yes {
					return errors.New("--reset deletes every registration; pass --yes to confirm")
				}
				e.log.Warn("resetting registration store", zap.String("backend", e.cfg.StoreBackend))
				if err := e.store.Reset(cmd.Context()); err != nil {
					e.log.Error("reset", zap.Error(err))
					return err
				}
				e.log.Info("registration store reset")
				return nil
			}
			if err := e.store.Init(cmd.Context()); err != nil {
				e.log.Error("migrate", zap.Error(err))
				return err
			}
			e.log.Info("registration store ready", zap.String("backend", e.cfg.StoreBackend))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop and recreate the registrations store")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm a destructive --reset")
	return cmd
}

func exportExcelCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-excel",
		Short: "Write every registration to an xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := e.store.ListAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("list registrations: %w", err)
			}
			return writeFile(out, func(w io.Writer) error {
				_, err := export.WriteExcel(w, records)
				return err
			}, func() {
				e.log.Info("workbook written", zap.String("path", out), zap.Int("rows", len(records)))
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", export.ExcelFilename, "output file")
	return cmd
}

func downloadPhotosCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download-photos",
		Short: "Write every stored photo to a zip archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := e.store.ListAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("list registrations: %w", err)
			}
			photos := photo.NewStore(e.cfg.UploadDir, e.cfg.MaxUploadBytes)
			var stats export.ArchiveStats
			return writeFile(out, func(w io.Writer) error {
				stats, err = export.WriteArchive(w, records, photos)
				return err
			}, func() {
				e.log.Info("archive written", zap.String("path", out),
					zap.Int("added", stats.Added), zap.Int("skipped", stats.Skipped))
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", export.ArchiveFilename, "output file")
	return cmd
}

func listCmd(e *env) *cobra.Command {
	var q registration.Query
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print registrations as JSON lines, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := registration.NewService(e.store, nil, e.log)
			records, err := svc.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Term, "q", "", "case-insensitive search over name, email and category")
	cmd.Flags().StringVar(&q.Category, "category", "", "exact category: student, employee or business")
	return cmd
}

// writeFile writes to a temp file beside path and renames it into place
// only when write succeeds.
func writeFile(path string, write func(io.Writer) error, done func()) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	done()
	return nil
}
