package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nepse-journal/internal/scheduler"
	"nepse-journal/internal/server"
)

// addServeCommand adds the HTTP API command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the journal HTTP API",
		Long: `Serve the JSON API on server.addr. When admin.repair_schedule is set, a
background job recalculates every balance on that cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := app.Config.Server
			if addr != "" {
				settings.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if schedule := app.Config.Admin.RepairSchedule; schedule != "" {
				sched := scheduler.New(app.Logger, app.location())
				job := scheduler.NewRepairJob(app.Portfolios, app.Logger)
				if err := sched.AddJob(schedule, job); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			srv := server.New(server.Config{
				Log:        app.Logger,
				Settings:   settings,
				Portfolios: app.Portfolios,
				Ledger:     app.Ledger,
				Validator:  app.Validator,
				Access:     app.Access,
				Store:      app.Store,
			})
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	rootCmd.AddCommand(cmd)
}
