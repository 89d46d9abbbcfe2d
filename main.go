package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonpro-reminders/cache"
	"salonpro-reminders/config"
	"salonpro-reminders/controllers"
	"salonpro-reminders/repository"
	"salonpro-reminders/routes"
	"salonpro-reminders/services"
	"salonpro-reminders/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "salonpro-reminders",
	Short:         "Appointment reminder scheduler for SalonPro",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd, scheduleCmd, migrateCmd, tokenCmd)
}

// app holds the wired reminder engine for one process.
type app struct {
	db        *gorm.DB
	redis     *redis.Client
	records   *repository.ReminderRepository
	booking   *repository.BookingRepository
	sent      *cache.SentReminders
	reminders *services.ReminderService
	clock     clockwork.Clock
	loc       *time.Location
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", cfg.TimeZone, err)
	}

	db, err := config.ConnectDB(cfg.DBDriver, cfg.DBURL)
	if err != nil {
		return nil, err
	}

	a := &app{
		db:      db,
		records: repository.NewReminderRepository(db),
		booking: repository.NewBookingRepository(db),
		clock:   clockwork.NewRealClock(),
		loc:     loc,
	}

	var feed services.SentFeed
	if cfg.RedisAddr != "" {
		a.redis, err = config.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.close()
			return nil, err
		}
		a.sent = cache.NewSentReminders(a.redis)
		feed = a.sent
	}

	channel, err := newChannel(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	policy := services.DefaultPolicy()
	policy.ItemDelay = cfg.ItemDelay
	policy.BackoffBase = cfg.BackoffBase
	policy.ClaimStaleAfter = cfg.ClaimStaleAfter

	a.reminders = services.NewReminderService(services.Deps{
		Records:      a.records,
		Selector:     repository.NewEligibilityRepository(db, loc, policy.NearTimeWindow),
		Appointments: a.booking,
		Deliverer:    services.NewDispatcher(channel, a.booking, a.booking),
		Feed:         feed,
		Clock:        a.clock,
		Location:     loc,
	}, policy)
	return a, nil
}

func newChannel(cfg *config.Config) (services.NotificationChannel, error) {
	switch cfg.Channel {
	case "twilio":
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			return nil, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for CHANNEL=twilio")
		}
		return services.NewTwilioChannel(cfg.Twilio), nil
	case "log":
		slog.Warn("dry-run channel selected, reminders will only be logged")
		return services.NewLogChannel(nil), nil
	default:
		return nil, fmt.Errorf("unsupported CHANNEL %q", cfg.Channel)
	}
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) controller() *controllers.ReminderController {
	rc := &controllers.ReminderController{
		Reminders: a.reminders,
		Records:   a.records,
		Stats:     a.records,
		Templates: a.booking,
		Clock:     a.clock,
		Location:  a.loc,
		Checks: map[string]func(context.Context) error{
			"database": func(ctx context.Context) error {
				sqlDB, err := a.db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
	}
	if a.sent != nil {
		rc.Sent = a.sent
		rc.Checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return rc
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reminder scheduler and the ops API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := config.Load()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		scheduler, err := services.NewScheduler(a.reminders, cfg.ReminderCron, a.loc, a.clock)
		if err != nil {
			return fmt.Errorf("invalid REMINDER_CRON %q: %w", cfg.ReminderCron, err)
		}

		gin.SetMode(gin.ReleaseMode)
		r := routes.SetupRouter(a.controller(), cfg.JWTSecret)
		printRoutes(r)
		srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("ops API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			scheduler.Start()
			<-gCtx.Done()
			slog.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("http shutdown", "error", err)
			}
			// Let an in-flight cycle finish its current item.
			<-scheduler.Stop().Done()
			return nil
		})
		return g.Wait()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reminder cycle now and print the counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, config.Load())
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.reminders.RunCycle(ctx, a.clock.Now())
		printJSON(report)
		return err
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Book a prescheduled reminder for an appointment",
	Long: `Book a prescheduled reminder for an approved appointment.

Examples:
  salonpro-reminders schedule --appointment 3f0c... --at 2026-10-18T08:00:00+02:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appointment, _ := cmd.Flags().GetString("appointment")
		at, _ := cmd.Flags().GetString("at")

		appointmentID, err := uuid.Parse(appointment)
		if err != nil {
			return fmt.Errorf("--appointment: %w", err)
		}
		sendAt, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at must be RFC 3339: %w", err)
		}

		a, err := newApp(cmd.Context(), config.Load())
		if err != nil {
			return err
		}
		defer a.close()

		id, err := a.reminders.ScheduleReminder(cmd.Context(), appointmentID, sendAt)
		if err != nil {
			return err
		}
		fmt.Printf("scheduled reminder %s for %s\n", id, sendAt.In(a.loc).Format(time.RFC1123))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the reminder tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		withBooking, _ := cmd.Flags().GetBool("booking-schema")
		cfg := config.Load()

		db, err := config.ConnectDB(cfg.DBDriver, cfg.DBURL)
		if err != nil {
			return err
		}
		defer closeDB(db)
		if err := config.Migrate(db, withBooking); err != nil {
			return err
		}
		slog.Info("migration complete", "driver", cfg.DBDriver, "booking_schema", withBooking)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the ops API",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := utils.GenerateToken(subject, config.Load().JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("appointment", "", "appointment ID")
	scheduleCmd.Flags().String("at", "", "send time, RFC 3339")
	scheduleCmd.MarkFlagRequired("appointment")
	scheduleCmd.MarkFlagRequired("at")

	migrateCmd.Flags().Bool("booking-schema", false, "also create the appointment tables (local runs and tests)")

	tokenCmd.Flags().String("subject", "ops", "token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

func printRoutes(r *gin.Engine) {
	routes := r.Routes()
	for _, route := range routes {
		fmt.Printf("%-6s %s\n", route.Method, route.Path)
	}
}
