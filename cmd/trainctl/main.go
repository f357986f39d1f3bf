// Command trainctl runs one-off operational tasks against the StaffTracker database.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stafftracker/internal/bootstrap"
	"stafftracker/internal/config"
	"stafftracker/internal/logging"
	"stafftracker/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type env struct {
	cfg    config.App
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:          "trainctl",
		Short:        "StaffTracker operations CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e.cfg = config.Load()
			// Commands migrate explicitly.
			e.cfg.RunMigrations = false
			logger, err := logging.New(e.cfg.LogLevel, "console")
			if err != nil {
				return err
			}
			e.logger = logger
			return nil
		},
	}
	root.AddCommand(
		migrateCmd(e),
		createHRCmd(e),
		sweepCmd(e),
		remindCmd(e),
		purgeCmd(e),
		deadLettersCmd(e),
	)
	return root
}

func (e *env) open() (*bootstrap.Infra, *bootstrap.Services, error) {
	infra, err := bootstrap.Open(e.cfg, e.logger)
	if err != nil {
		return nil, nil, err
	}
	return infra, bootstrap.Build(e.cfg, infra, e.logger), nil
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := store.NewDB(e.cfg.DatabaseURL, 1)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()
			return store.Migrate(db.Client, e.logger)
		},
	}
}

func createHRCmd(e *env) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "create-hr",
		Short: "Create an approved HR account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infra, svc, err := e.open()
			if err != nil {
				return err
			}
			defer infra.Close()
			u, err := svc.Identity.BootstrapHR(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created HR account %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func sweepCmd(e *env) *cobra.Command {
	var trainingID string
	var force bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark approved registrants without attendance as absent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infra, svc, err := e.open()
			if err != nil {
				return err
			}
			defer infra.Close()
			out := cmd.OutOrStdout()
			if trainingID != "" {
				n, err := svc.Attendance.Sweep(cmd.Context(), trainingID, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: marked %d absent\n", trainingID, n)
				return nil
			}
			results, err := svc.Attendance.SweepAll(cmd.Context(), force)
			for _, r := range results {
				fmt.Fprintf(out, "%s (%s): marked %d absent\n", r.Title, r.TrainingID, r.Marked)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&trainingID, "training-id", "", "sweep a single training")
	cmd.Flags().BoolVar(&force, "force", false, "sweep trainings that have not ended yet")
	return cmd
}

func remindCmd(e *env) *cobra.Command {
	var ignoreGate bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send certificate expiry reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infra, svc, err := e.open()
			if err != nil {
				return err
			}
			defer infra.Close()
			out := cmd.OutOrStdout()
			if ignoreGate {
				rep, err := svc.Reminder.Run(cmd.Context(), time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "soon=%d expired=%d failed=%d\n", rep.Soon, rep.Expired, rep.Failed)
				return nil
			}
			ran, rep, err := svc.Reminder.RunDaily(cmd.Context())
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintln(out, "reminders already ran today")
				return nil
			}
			fmt.Fprintf(out, "soon=%d expired=%d failed=%d\n", rep.Soon, rep.Expired, rep.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignoreGate, "ignore-gate", false, "run even if reminders already ran today")
	return cmd
}

func purgeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete unredeemed check-in tokens that expired over a day ago",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infra, svc, err := e.open()
			if err != nil {
				return err
			}
			defer infra.Close()
			n, err := svc.Attendance.PurgeExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d tokens\n", n)
			return nil
		},
	}
}

func deadLettersCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List notifications that exhausted their delivery attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infra, _, err := e.open()
			if err != nil {
				return err
			}
			defer infra.Close()
			dead, err := infra.Queue.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(dead) == 0 {
				fmt.Fprintln(out, "no dead letters")
				return nil
			}
			for _, d := range dead {
				fmt.Fprintf(out, "%s  %s  attempts=%d  %s\n",
					d.BuriedAt.Format(time.RFC3339), d.Message.ID, d.Message.Attempts+1, d.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}
