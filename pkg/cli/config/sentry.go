package config

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Sentry holds the error reporting configuration
type Sentry struct {
	dsn string `masq:"secret"`
	env string
}

func (s *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error reporting",
			Category:    "Sentry",
			Sources:     cli.EnvVars("RECALL_SENTRY_DSN"),
			Destination: &s.dsn,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment",
			Category:    "Sentry",
			Sources:     cli.EnvVars("RECALL_SENTRY_ENV"),
			Destination: &s.env,
		},
	}
}

func (s *Sentry) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Bool("dsn_set", s.dsn != ""),
		slog.String("env", s.env),
	}
}

// Configure initializes the global Sentry client. The returned function
// flushes buffered events. Without a DSN nothing is initialized.
func (s *Sentry) Configure(version string) (func(), error) {
	if s.dsn == "" {
		logging.Default().Debug("Sentry DSN not set, error reporting disabled")
		return func() {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         s.dsn,
		Environment: s.env,
		Release:     version,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize sentry")
	}

	logging.Default().Info("Sentry enabled", "env", s.env)
	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}
