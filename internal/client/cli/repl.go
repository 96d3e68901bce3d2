package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Whoami(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	ResetPassword(ctx context.Context) error
}

// runREPL reads commands line by line and dispatches them to a. The loop
// exits on scanner EOF or when the user types "exit" or "quit".
//
// Commands:
//
//	Not logged in:
//	  - help           - show available commands
//	  - register       - create an account and log in
//	  - login          - authenticate
//	  - forgot         - request a password reset email
//	  - reset          - set a new password with a reset token
//	  - exit | quit    - leave the program
//
//	Logged in, additionally:
//	  - whoami         - show the current account
//	  - refresh        - rotate the session tokens
//	  - passwd         - change password
//	  - logout         - end this session
//	  - logout-all     - end every session of the account
//
// Command handlers report their own errors, so they are ignored here.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("authctl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, refresh, passwd, logout, logout-all, login, register, forgot, reset, exit")
			} else {
				printlnFn("Available commands: register, login, forgot, reset, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "whoami", "me":
			_ = a.Whoami(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "logout-all":
			_ = a.LogoutAll(ctx)

		case "passwd":
			_ = a.ChangePassword(ctx)

		case "forgot":
			_ = a.ForgotPassword(ctx)

		case "reset":
			_ = a.ResetPassword(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
