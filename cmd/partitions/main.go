package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/Freeeeeet/booking_core/internal/app"
	"github.com/Freeeeeet/booking_core/internal/config"
	"github.com/Freeeeeet/booking_core/internal/formatting"
	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"github.com/Freeeeeet/booking_core/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	var (
		list   = flag.Bool("list", false, "показать секции appointments и system_events")
		ensure = flag.Int("ensure", -1, "создать секции на N месяцев вперёд")
		retire = flag.Int("retire", 0, fmt.Sprintf("удалить секции старше N месяцев (не меньше %d)", service.MinRetentionMonths))
		dryRun = flag.Bool("dry-run", false, "вместе с -retire только показать, что будет удалено")
	)
	flag.Parse()

	if !*list && *ensure < 0 && *retire == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	partitions := service.NewPartitionService(repository.NewPartitionRepository(migrator.DB()), logger)

	if *ensure >= 0 {
		report, err := partitions.EnsureFuturePartitions(ctx, *ensure)
		if report != nil {
			for _, name := range report.Created {
				fmt.Printf("created  %s\n", name)
			}
			fmt.Printf("уже существовало: %d\n", len(report.AlreadyExisting))
		}
		if err != nil {
			logger.Fatal("Failed to ensure partitions", zap.Error(err))
		}
	}

	if *retire != 0 {
		report, err := partitions.RetireOldPartitions(ctx, *retire, *dryRun)
		if err != nil {
			logger.Fatal("Failed to retire partitions", zap.Error(err))
		}
		verb := "retired"
		if report.DryRun {
			verb = "would retire"
		}
		fmt.Printf("cutoff %s\n", formatting.FormatDate(report.Cutoff))
		for _, name := range report.Retired {
			fmt.Printf("%s  %s\n", verb, name)
		}
		fmt.Printf("сохранено: %d\n", len(report.Kept))
	}

	if *list {
		parts, err := partitions.ListPartitions(ctx)
		if err != nil {
			logger.Fatal("Failed to list partitions", zap.Error(err))
		}
		printPartitions(parts)
	}
}

func printPartitions(parts []model.Partition) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "TABLE\tPARTITION\tRANGE\tROWS\tSIZE")
	for _, p := range parts {
		rng := "DEFAULT"
		if !p.IsDefault {
			rng = fmt.Sprintf("%s .. %s", formatting.FormatDate(p.RangeStart), formatting.FormatDate(p.RangeEnd))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%s\n",
			p.ParentTable,
			p.Name,
			rng,
			p.RowCount,
			formatting.PluralizeBookings(int(p.RowCount)),
			formatting.FormatBytes(p.SizeBytes),
		)
	}
}
