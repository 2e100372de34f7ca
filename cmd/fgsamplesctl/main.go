package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/vbonduro/fgsamples/internal/backend"
	"github.com/vbonduro/fgsamples/internal/config"
	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/logging"
	"github.com/vbonduro/fgsamples/internal/service"
	"github.com/vbonduro/fgsamples/internal/store"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "fgsamplesctl"
	app.Usage = "administration for the FG sample register"
	app.Writer = out

	passwordFlag := cli.StringFlag{
		Name:  "password",
		Usage: "password to store; read from stdin when omitted",
	}

	app.Commands = []cli.Command{
		{
			Name:  "user",
			Usage: "Manage operator accounts",
			Subcommands: []cli.Command{
				{
					Name:      "add",
					Usage:     "Create a user with a password",
					ArgsUsage: "<user-id>",
					Flags:     []cli.Flag{passwordFlag},
					Action: func(clictx *cli.Context) error {
						return setPassword(clictx, in, out, true)
					},
				},
				{
					Name:      "passwd",
					Usage:     "Change an existing user's password",
					ArgsUsage: "<user-id>",
					Flags:     []cli.Flag{passwordFlag},
					Action: func(clictx *cli.Context) error {
						return setPassword(clictx, in, out, false)
					},
				},
			},
		},
		{
			Name:  "hash-password",
			Usage: "Print a bcrypt hash, e.g. for ADMIN_PASSWORD_HASH",
			Flags: []cli.Flag{passwordFlag},
			Action: func(clictx *cli.Context) error {
				password, err := readPassword(clictx, in)
				if err != nil {
					return err
				}
				hash, err := service.HashPassword(password)
				if err != nil {
					return fmt.Errorf("failed to hash password: %w", err)
				}
				fmt.Fprintln(out, hash)
				return nil
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply schema migrations and indexes for the configured document store",
			Action: func(clictx *cli.Context) error {
				return withDocstore(func(_ context.Context, cfg *config.Config, ds docstore.Store) error {
					fmt.Fprintf(out, "%s document store is up to date\n", cfg.DocstoreBackend)
					return nil
				})
			},
		},
	}

	app.Action = func(clictx *cli.Context) error {
		fmt.Fprintf(out, "Must specify command. Run `%s help` for info\n", app.Name)
		return nil
	}
	return app
}

// withDocstore opens the configured store, which also applies migrations or
// indexes, and closes it after fn.
func withDocstore(fn func(ctx context.Context, cfg *config.Config, ds docstore.Store) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer cleanup()

	ctx := context.Background()
	ds, err := backend.OpenDocstore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close document store: %w", cerr)
		}
	}()
	return fn(ctx, cfg, ds)
}

func setPassword(clictx *cli.Context, in io.Reader, out io.Writer, create bool) error {
	userID := strings.ToLower(strings.TrimSpace(clictx.Args().First()))
	if userID == "" {
		return errors.New("user ID is required")
	}
	password, err := readPassword(clictx, in)
	if err != nil {
		return err
	}

	return withDocstore(func(ctx context.Context, cfg *config.Config, ds docstore.Store) error {
		users := store.NewUserStore(ds)
		_, err := users.Get(ctx, userID)
		switch {
		case create && err == nil:
			return fmt.Errorf("user %s already exists", userID)
		case !create && errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("user %s does not exist", userID)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}

		prefixes := make([]service.SitePrefix, 0, len(cfg.SitePrefixes))
		for _, p := range cfg.SitePrefixes {
			prefixes = append(prefixes, service.SitePrefix{Prefix: p.Prefix, Site: p.Site})
		}
		auth := service.NewAuthService(users, prefixes, "", slog.Default())
		defer auth.Close()

		if err := auth.SetPassword(ctx, userID, password); err != nil {
			return err
		}
		fmt.Fprintf(out, "password set for %s (site %s)\n", userID, auth.SiteFor(userID))
		return nil
	})
}

func readPassword(clictx *cli.Context, in io.Reader) (string, error) {
	if p := clictx.String("password"); p != "" {
		return p, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
