package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pdfgate/cmd/internal/accounts"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/dbschema"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/storage"
	"pdfgate/cmd/security/password"

	"github.com/spf13/pflag"
)

const usage = `usage: pdfgate <command> [flags]

commands:
  serve        run the HTTP server (default)
  migrate      apply database migrations and exit
  seed-admin   create the first ADMIN account if it does not exist
  keygen       print a fresh PASETO v4 secret key (hex)

run "pdfgate <command> --help" for command flags.
`

// Run is the CLI entrypoint used by cmd/pdfgate.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		return runServe(ctx, args)
	case "migrate":
		return runMigrate(ctx, args)
	case "seed-admin":
		return runSeedAdmin(ctx, args)
	case "keygen":
		return runKeygen(os.Stdout, args)
	case "help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parseFlags parses fs, treating --help as a clean exit.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	fs.BoolP("help", "h", false, "show help")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, err
	}
	if help, _ := fs.GetBool("help"); help {
		fmt.Fprintf(os.Stdout, "usage: pdfgate %s [flags]\n\n%s", fs.Name(), fs.FlagUsages())
		return true, nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		return false, fmt.Errorf("%s: unexpected arguments %v", fs.Name(), rest)
	}
	return false, nil
}

func configFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("config", "c", "", "path to a YAML config file (default $"+ConfigEnvKey+")")
}

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cfgPath := configFlag(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func runMigrate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	cfgPath := configFlag(fs)
	schema := fs.String("schema", dbschema.Schema, "target Postgres schema")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("migrate: PDFGATE_DATABASE_URL is not set")
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	applied, err := dbschema.Migrate(ctx, pool, *schema, log)
	if err != nil {
		return err
	}
	log.Info("migrate.done", "schema", *schema, "applied", applied)
	return nil
}

func runSeedAdmin(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("seed-admin", pflag.ContinueOnError)
	cfgPath := configFlag(fs)
	email := fs.String("email", "", "admin email (default $PDFGATE_SEED_ADMIN_EMAIL)")
	pw := fs.String("password", "", "admin password (default $PDFGATE_SEED_ADMIN_PASSWORD)")
	name := fs.String("name", accounts.SeedAdminName, "admin display name")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	if *email == "" {
		*email = EnvString("PDFGATE_SEED_ADMIN_EMAIL", "")
	}
	if *pw == "" {
		*pw = os.Getenv("PDFGATE_SEED_ADMIN_PASSWORD")
	}
	if *email == "" || *pw == "" {
		return errors.New("seed-admin: --email and --password are required")
	}

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("seed-admin: PDFGATE_DATABASE_URL is not set")
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	hasher, err := password.FromEnv()
	if err != nil {
		return fmt.Errorf("password config: %w", err)
	}
	b, err := openBackends(ctx, cfg, log, hasher)
	if err != nil {
		return err
	}
	defer b.close()

	blobs, err := storage.NewDirStore(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	acct, err := accounts.NewService(b.users,
		library.NewService(b.library, blobs, b.users, cfg.UploadMaxBytes, log),
		accounts.WithLogger(log),
	)
	if err != nil {
		return err
	}

	u, created, err := acct.SeedAdmin(ctx, *email, *pw, *name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seed-admin: %w", err)
	}
	if created {
		fmt.Fprintf(os.Stdout, "created admin %s (%s)\n", u.Email, u.ID)
	} else {
		fmt.Fprintf(os.Stdout, "admin %s already exists (%s)\n", u.Email, u.ID)
	}
	return nil
}

func runKeygen(w io.Writer, args []string) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, session.NewPasetoSecretKeyHex())
	return err
}
