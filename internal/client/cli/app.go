// Package cli implements ssoctl, the operator tool for the SSO service.
//
//	ssoctl hash [-a bcrypt|argon2id] [-cost N]   print a password hash
//	ssoctl migrate -d DSN                        apply database migrations
//	ssoctl login -s URL [-e EMAIL]               log in and print tokens
//	ssoctl version                               print build information
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/sso/internal/buildinfo"
	"github.com/dmitrijs2005/sso/internal/client/client"
	"github.com/dmitrijs2005/sso/internal/server/password"
	"github.com/dmitrijs2005/sso/internal/server/repositories/repomanager"
)

var ErrUsage = errors.New("usage: ssoctl <hash|migrate|login|version> [flags]")

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(in io.Reader, out io.Writer) *App {
	return &App{reader: bufio.NewReader(in), out: out}
}

// NewStdApp reads from stdin and writes to stdout.
func NewStdApp() *App {
	return NewApp(os.Stdin, os.Stdout)
}

// Run dispatches args[0] to a subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "hash":
		return a.hash(rest)
	case "migrate":
		return a.migrate(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "version":
		buildinfo.PrintBuildData(a.out)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, ErrUsage)
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) hash(args []string) error {
	fs := a.flagSet("hash")
	alg := fs.String("a", password.AlgorithmBcrypt, "algorithm: bcrypt or argon2id")
	cost := fs.Int("cost", 0, "bcrypt cost (0 means default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	hasher, err := password.New(password.Config{Algorithm: *alg, BcryptCost: *cost})
	if err != nil {
		return err
	}

	plain, err := GetPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	if plain == "" {
		return errors.New("empty password")
	}

	encoded, err := hasher.Hash(plain)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, encoded)
	return nil
}

func (a *App) migrate(ctx context.Context, args []string) error {
	fs := a.flagSet("migrate")
	dsn := fs.String("d", os.Getenv("SSO_DATABASE_DSN"), "Postgres DSN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("migrate: -d DSN is required")
	}

	db, err := openDB(*dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	server := fs.String("s", "http://127.0.0.1:8080", "server base URL")
	email := fs.String("e", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		v, err := GetSimpleText(a.reader, "Enter email", a.out)
		if err != nil {
			return err
		}
		*email = v
	}
	plain, err := GetPassword(a.reader, a.out)
	if err != nil {
		return err
	}

	s, err := client.New(*server).Login(ctx, *email, plain)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	fmt.Fprintf(a.out, "user_id: %s\ntoken: %s\nrefresh_token: %s\n", s.UserID, s.Token, s.RefreshToken)
	return nil
}
