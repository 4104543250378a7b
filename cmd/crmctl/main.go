// Command crmctl runs maintenance tasks against the CRM database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"enrollment-crm/config"
	"enrollment-crm/db"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/services"
	"enrollment-crm/services/kafka"
	"enrollment-crm/utils"

	"github.com/spf13/cobra"
)

// app holds the services commands run against.
type app struct {
	deps     *services.Deps
	producer *kafka.Producer
	leads    *services.LeadService
	courses  *services.CourseService
	finance  *services.FinanceService
	team     *services.TeamService
}

func newApp(store repository.Store, producer *kafka.Producer, cfg config.Config) *app {
	deps := &services.Deps{
		Store:    store,
		Events:   kafka.NewBus(producer, nil, store),
		Topics:   services.TopicsFromConfig(cfg),
		Location: cfg.Location(),
	}
	enrollment := services.NewEnrollmentService(deps)
	return &app{
		deps:     deps,
		producer: producer,
		leads:    services.NewLeadService(deps, enrollment),
		courses:  services.NewCourseService(deps),
		finance:  services.NewFinanceService(deps, nil, cfg.PaymentCurrency),
		team:     services.NewTeamService(deps),
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		a       *app
		verbose bool
	)

	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Maintenance commands for the enrollment CRM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			level := logger.ParseLevel(config.AppConfig.LogLevel)
			if verbose {
				level = logger.DEBUG
			}
			logger.SetDefault(logger.New(logger.Config{Level: level, Output: os.Stderr}))

			if err := db.InitDB(); err != nil {
				return err
			}
			store := repository.NewPostgresStore(db.DB)
			producer := kafka.NewProducer(config.AppConfig.KafkaBrokerList(), store)
			a = newApp(store, producer, config.AppConfig)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a != nil {
				a.producer.Close()
			}
			return db.Close()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	appFn := func() *app { return a }
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(appFn),
		newImportLeadsCmd(appFn),
		newExportFinanceCmd(appFn),
		newSweepOverdueCmd(appFn),
		newCreateUserCmd(appFn),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The pre-run already migrated while connecting.
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newSeedCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:     "seed <file.yaml>",
		Short:   "Load courses and team members from a YAML file",
		Example: "  crmctl seed catalog.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			seed, err := parseSeed(f)
			if err != nil {
				return err
			}
			res, err := applySeed(cmd.Context(), a().courses, a().team, seed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newImportLeadsCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-leads <file.xlsx>",
		Short: "Import leads from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := a().leads.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d leads imported, %d skipped\n", report.Created, len(report.Skipped))
			for _, issue := range report.Skipped {
				fmt.Fprintf(out, "  line %d: %s\n", issue.Line, issue.Reason)
			}
			return nil
		},
	}
}

func newExportFinanceCmd(a func() *app) *cobra.Command {
	var (
		out    string
		status string
		leadID string
	)
	cmd := &cobra.Command{
		Use:   "export-finance",
		Short: "Export financial records to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a().finance.Export(cmd.Context(), services.RecordFilter{
				Status: models.RecordStatus(status),
				LeadID: leadID,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "financeiro.xlsx", "Output file")
	cmd.Flags().StringVar(&status, "status", "", "Only records with this status (PAID, PENDING, OVERDUE)")
	cmd.Flags().StringVar(&leadID, "lead", "", "Only records of this lead")
	return cmd
}

func newSweepOverdueCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark pending records past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			n, err := a().finance.SweepOverdue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records marked overdue as of %s\n", n,
				utils.BrazilianDate(utils.FormatDate(a().deps.Now().In(a().deps.Location))))
			return nil
		},
	}
}

func newCreateUserCmd(a func() *app) *cobra.Command {
	var in services.UserInput
	var role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a team member",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = models.UserRole(role)
			user, err := a().team.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s <%s> as %s (id %s)\n", user.Name, user.Email, user.Role, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Login email (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password, at least 8 characters (required)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleConsultant), "ADMIN, MANAGER, CONSULTANT or FINANCE")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
