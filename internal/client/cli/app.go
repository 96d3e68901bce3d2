package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/assistauth/internal/client/client"
	"github.com/dmitrijs2005/assistauth/internal/client/config"
	"github.com/dmitrijs2005/assistauth/internal/client/services"
	"github.com/dmitrijs2005/assistauth/internal/filex"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	db          *sql.DB
	reader      *bufio.Reader
	out         io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := filex.EnsureParentDir(c.SessionDB); err != nil {
		return nil, err
	}

	db, err := client.OpenSessionDB(ctx, c.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("error initializing session database: %w", err)
	}

	apiClient := client.NewRESTClient(c.ServerURL, c.RequestTimeout)

	return &App{
		config:      c,
		authService: services.NewAuthService(apiClient, db),
		db:          db,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}, nil
}

// Run checks the server, then serves the REPL on stdin until exit.
func (a *App) Run(ctx context.Context) {
	defer a.db.Close()

	fmt.Fprintln(a.out, "Welcome to authctl (type 'help' for commands)")
	if err := a.authService.Ping(ctx); err != nil {
		fmt.Fprintf(a.out, "warning: %s is not reachable: %v\n", a.config.ServerURL, err)
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) isLoggedIn() bool {
	email, err := a.authService.CurrentEmail(context.Background())
	return err == nil && email != ""
}

func (a *App) getStatus() string {
	email, err := a.authService.CurrentEmail(context.Background())
	if err != nil || email == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", email)
}
