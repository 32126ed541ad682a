package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var appCfg config.AppConfig

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the TOML configuration file",
		Flags:   appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if appCfg.Path() == "" {
				return goerr.Wrap(config.ErrInvalidConfig, "--config is required")
			}

			cfg, err := appCfg.Configure()
			if err != nil {
				_, _ = fmt.Fprintf(c.Root().ErrWriter, "%s %s\n", color.RedString("NG"), err.Error())
				return goerr.Wrap(err, "configuration validation failed")
			}

			logging.Default().Info("Configuration validation passed", "path", cfg.Path())
			_, _ = fmt.Fprintf(c.Root().Writer, "%s %s\n", color.GreenString("OK"), cfg.Path())
			return nil
		},
	}
}
