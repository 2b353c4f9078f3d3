package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tg-photo-moderator/internal/adapters/repo"
	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/config"
	"tg-photo-moderator/internal/infra/db"
	"tg-photo-moderator/internal/infra/log"
)

const commandTimeout = 30 * time.Second

func loadSnapshot(cmd *cobra.Command) (domain.Snapshot, config.AppConfig, error) {
	cfg := config.Load()
	if err := cfg.ValidateStorage(); err != nil {
		return domain.Snapshot{}, cfg, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	stateRepo, closeRepo, err := repo.Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		return domain.Snapshot{}, cfg, err
	}
	defer closeRepo()
	snap, err := stateRepo.Load(ctx)
	if err != nil {
		return domain.Snapshot{}, cfg, fmt.Errorf("загрузка состояния: %w", err)
	}
	return snap, cfg, nil
}

// photoctl stats
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Размеры таблиц состояния",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, cfg, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\n", cfg.Storage.Backend)
		writeStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

// photoctl scheduled
var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "Запланированные публикации по времени",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, cfg, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		return writeScheduled(cmd.OutOrStdout(), snap.Scheduled, loc)
	},
}

// photoctl pending
var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Фото, ожидающие решения администратора",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, cfg, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		return writePending(cmd.OutOrStdout(), snap.Pending, loc)
	},
}

// photoctl migrate --to postgres
var migrateCmd = &cobra.Command{
	Use:   "migrate --to BACKEND",
	Short: "Скопировать состояние из STORAGE_BACKEND в другой бэкенд",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		dir, _ := cmd.Flags().GetString("to-dir")

		snap, cfg, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		target := cfg
		target.Storage.Backend = to
		if dir != "" {
			target.Storage.Dir = dir
		}
		if target.Storage.Backend == cfg.Storage.Backend && target.Storage.Dir == cfg.Storage.Dir {
			return fmt.Errorf("источник и приёмник совпадают: %s", to)
		}
		if err := target.ValidateStorage(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		logger := log.NewLogger(cfg.AppEnv)
		dst, closeDst, err := repo.Open(ctx, target, logger)
		if err != nil {
			return err
		}
		defer closeDst()
		if err := dst.Save(ctx, snap); err != nil {
			return fmt.Errorf("запись в %s: %w", to, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "перенесено из %s в %s:\n", cfg.Storage.Backend, to)
		writeStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

// photoctl schema --version N
var schemaCmd = &cobra.Command{
	Use:   "schema [--version N]",
	Short: "Применить миграции схемы Postgres (PG_DSN)",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetUint("version")
		cfg := config.Load()
		if cfg.PGDSN == "" {
			return fmt.Errorf("PG_DSN не задан")
		}
		return db.Migrate(cfg.PGDSN, target, log.NewLogger(cfg.AppEnv))
	},
}

func init() {
	migrateCmd.Flags().String("to", "", "Бэкенд-приёмник: file, postgres или redis")
	migrateCmd.Flags().String("to-dir", "", "Каталог для бэкенда file (по умолчанию STORAGE_DIR)")
	_ = migrateCmd.MarkFlagRequired("to")
	schemaCmd.Flags().Uint("version", 0, "Целевая версия схемы (0 — последняя)")
}

func writeStats(w io.Writer, snap domain.Snapshot) {
	active := 0
	for _, s := range snap.Sessions {
		if s.Active {
			active++
		}
	}
	failing := 0
	for _, e := range snap.Scheduled {
		if e.Attempts > 0 {
			failing++
		}
	}
	fmt.Fprintf(w, "hashes:    %d\n", len(snap.Hashes))
	fmt.Fprintf(w, "pending:   %d\n", len(snap.Pending))
	fmt.Fprintf(w, "scheduled: %d (с ошибками: %d)\n", len(snap.Scheduled), failing)
	fmt.Fprintf(w, "sessions:  %d (активных: %d)\n", len(snap.Sessions), active)
}

func writeScheduled(w io.Writer, entries []domain.ScheduledEntry, loc *time.Location) error {
	sorted := append([]domain.ScheduledEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FireAt.Before(sorted[j].FireAt) })
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIRE_AT\tOWNER\tATTEMPTS\tID\tLAST_ERROR")
	for _, e := range sorted {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", e.FireAt.In(loc).Format("2006-01-02 15:04"), e.OwnerID, e.Attempts, e.ID, e.LastError)
	}
	return tw.Flush()
}

func writePending(w io.Writer, pending []domain.PendingSubmission, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSUBMITTED_AT\tAUTHOR\tDUPLICATE")
	for _, p := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.Key, p.SubmittedAt.In(loc).Format("2006-01-02 15:04"), p.Author, p.Duplicate)
	}
	return tw.Flush()
}
