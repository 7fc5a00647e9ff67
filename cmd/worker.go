package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brazeiro63/vovo-achados-portal/config"
	"github.com/brazeiro63/vovo-achados-portal/internal/db"
	"github.com/brazeiro63/vovo-achados-portal/internal/logger"
	"github.com/brazeiro63/vovo-achados-portal/internal/mq"
	"github.com/brazeiro63/vovo-achados-portal/internal/notify"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/internal/worker"
	"github.com/spf13/cobra"
)

var purgeSchedule string

// workerCmd delivers queued auth links and purges expired sessions.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver auth links and purge expired sessions",
	Long: `Consumes recovery and confirmation links from the message bus and
purges expired sessions and link tokens on a cron schedule. Requires a shared
bus (MQ_BACKEND=rabbitmq or pubsub); with the memory bus the server runs the
worker in-process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		bus, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close()

		w := worker.New(bus, notify.LogMailer{Logger: log}, store.NewUserRepository(dbConn), purgeSchedule, log)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringVar(&purgeSchedule, "purge-schedule", worker.DefaultPurgeSchedule, "cron schedule of the expired session purge")
}
