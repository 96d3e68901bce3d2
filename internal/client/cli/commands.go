package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/assistauth/internal/client/client"
	"github.com/dmitrijs2005/assistauth/internal/client/models"
	"github.com/dmitrijs2005/assistauth/internal/common"
)

// report prints err in a user-facing form and returns it.
func (a *App) report(err error) error {
	var ae *client.APIError
	switch {
	case errors.As(err, &ae):
		fmt.Fprintf(a.out, "error: %s\n", ae.Message)
		for field, problem := range ae.Details {
			fmt.Fprintf(a.out, "  %s: %s\n", field, problem)
		}
	case errors.Is(err, client.ErrNotLoggedIn):
		fmt.Fprintln(a.out, "You are not logged in")
	default:
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
	return err
}

func (a *App) askText(prompt string) (string, error) {
	return GetSimpleText(a.reader, prompt, a.out)
}

func (a *App) askPassword(prompt string) (string, error) {
	pw, err := GetPassword(prompt, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

func printUser(a *App, u *models.User) {
	fmt.Fprintf(a.out, "%s <%s>\n  id: %s\n  role: %s\n  status: %s\n", u.Name, u.Email, u.ID, u.Role, u.Status)
	if u.Country != "" || u.City != "" {
		fmt.Fprintf(a.out, "  location: %s %s\n", u.City, u.Country)
	}
}

func (a *App) Register(ctx context.Context) error {
	var reg models.Registration
	var err error

	if reg.Email, err = a.askText("-Enter email"); err != nil {
		return a.report(err)
	}
	if reg.Name, err = a.askText("-Enter name"); err != nil {
		return a.report(err)
	}
	if reg.Country, err = a.askText("-Enter country (optional)"); err != nil {
		return a.report(err)
	}
	if reg.City, err = a.askText("-Enter city (optional)"); err != nil {
		return a.report(err)
	}
	if reg.Password, err = a.askPassword("Enter password"); err != nil {
		return a.report(err)
	}

	u, err := a.authService.Register(ctx, reg)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Registered and logged in as %s\n", u.Email)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := a.askText("-Enter email")
	if err != nil {
		return a.report(err)
	}
	password, err := a.askPassword("Enter password")
	if err != nil {
		return a.report(err)
	}

	u, err := a.authService.Login(ctx, email, password)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", u.Email)
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	u, err := a.authService.Whoami(ctx)
	if err != nil {
		return a.report(err)
	}
	printUser(a, u)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.authService.Refresh(ctx); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Session refreshed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) LogoutAll(ctx context.Context) error {
	n, err := a.authService.LogoutAll(ctx)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Logged out from all devices (%d sessions revoked)\n", n)
	return nil
}

func (a *App) ChangePassword(ctx context.Context) error {
	current, err := a.askPassword("Enter current password")
	if err != nil {
		return a.report(err)
	}
	next, err := a.askPassword("Enter new password")
	if err != nil {
		return a.report(err)
	}

	if err := a.authService.ChangePassword(ctx, current, next); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Password changed, please login again")
	return nil
}

func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := a.askText("-Enter email")
	if err != nil {
		return a.report(err)
	}
	msg, err := a.authService.ForgotPassword(ctx, email)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	token, err := a.askText("-Enter reset token from the email")
	if err != nil {
		return a.report(err)
	}
	next, err := a.askPassword("Enter new password")
	if err != nil {
		return a.report(err)
	}

	msg, err := a.authService.ResetPassword(ctx, token, next)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, msg)
	return nil
}
