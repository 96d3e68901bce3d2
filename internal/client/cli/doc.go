// Package cli provides the interactive authctl command-line client.
//
// It wires configuration, the local session database and the REST API
// client, then runs a REPL over the account lifecycle:
//
//   - register, login, whoami, refresh
//   - logout, logout-all
//   - passwd (change password), forgot, reset
//
// Passwords are read from the terminal without echo. The REPL is started via
// App.Run(ctx), which blocks until the user exits.
package cli
