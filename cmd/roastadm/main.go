// roastadm is the operator CLI: schema migrations, seed data, accounts and
// the dead letter queue.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"roastkit/internal/config"
	"roastkit/internal/dto"
	"roastkit/internal/infra"
	"roastkit/internal/repository"
	"roastkit/internal/seed"
	"roastkit/internal/service"
	"roastkit/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "roastadm",
	Short:         "Roastery backend administration",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := infra.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		return printVersion(cmd, cfg.DatabaseURL)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return printVersion(cmd, cfg.DatabaseURL)
	},
}

func printVersion(cmd *cobra.Command, dsn string) error {
	status, err := infra.MigrationVersion(dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", status.Version, status.Dirty)
	return nil
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create users and bean varieties from a YAML file",
	Long: `Create users and bean varieties from a YAML file.

Example file:
  users:
    - {username: admin, full_name: Head Roaster, password: changeme123, role: ADMIN}
  varieties:
    - {name: Ethiopia Guji, stock_green: 30000}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		file, err := seed.Load(f)
		if err != nil {
			return err
		}

		cfg, db, err := connect()
		if err != nil {
			return err
		}
		auth := service.NewAuthService(repository.NewUserRepository(db), cfg)
		inventory := service.NewInventoryService(repository.NewVarietyRepository(db), repository.NewStockMovementRepository(db), nil)

		res, err := seed.Apply(cmd.Context(), file, auth, inventory)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "users created: %d, skipped: %d; varieties created: %d, skipped: %d\n",
			res.UsersCreated, res.UsersSkipped, res.VarietiesCreated, res.VarietiesSkipped)
		return nil
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an operator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := dto.CreateUserRequest{}
		req.Username, _ = cmd.Flags().GetString("username")
		req.FullName, _ = cmd.Flags().GetString("full-name")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Role, _ = cmd.Flags().GetString("role")
		if req.FullName == "" {
			req.FullName = req.Username
		}

		cfg, db, err := connect()
		if err != nil {
			return err
		}
		user, err := service.NewAuthService(repository.NewUserRepository(db), cfg).CreateUser(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Username, user.Role, user.ID)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print the bcrypt hash stored for a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := service.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay failed background jobs",
}

var dlqStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the size of every dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		rdb, err := infra.NewRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		for _, q := range []string{worker.QueueRoastReport, worker.QueueEmail} {
			n, err := worker.DLQLength(cmd.Context(), rdb, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\t%d\n", worker.DLQPrefix, q, n)
		}
		return nil
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay <queue>",
	Short: "Move parked jobs back onto their queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("max")
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		rdb, err := infra.NewRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		n, err := worker.ReplayDLQ(cmd.Context(), rdb, args[0], limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d job(s) onto %s\n", n, args[0])
		return nil
	},
}

func connect() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func init() {
	seedCmd.Flags().StringP("file", "f", "seed.yaml", "seed file")

	createUserCmd.Flags().String("username", "", "login name")
	createUserCmd.Flags().String("full-name", "", "display name")
	createUserCmd.Flags().String("password", "", "initial password")
	createUserCmd.Flags().String("role", "ROASTER", "ADMIN or ROASTER")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")

	dlqReplayCmd.Flags().Int("max", 100, "maximum number of jobs to replay")

	migrateCmd.AddCommand(migrateUpCmd, migrateVersionCmd)
	dlqCmd.AddCommand(dlqStatusCmd, dlqReplayCmd)
	rootCmd.AddCommand(migrateCmd, seedCmd, createUserCmd, hashPasswordCmd, dlqCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
