package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/flagx"
)

// parseFlags populates Config fields from the short flags -a, -d and -t.
// Other arguments are filtered out by flagx.FilterArgs first.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the auth server")
	fs.StringVar(&cfg.SessionDB, "d", cfg.SessionDB, "session database path")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	return nil
}
