package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/taskdeck/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "taskdeck.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the effective configuration",
				Action: runConfigValidate,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: runConfigShow,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", outputPath)
	return nil
}

func loadValidConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runConfigValidate(c *cli.Context) error {
	if _, err := loadValidConfig(c); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Configuration is valid")
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := loadValidConfig(c)
	if err != nil {
		return err
	}
	rate := "unlimited"
	if cfg.API.RateLimit > 0 {
		rate = fmt.Sprintf("%g/s, burst %d", cfg.API.RateLimit, cfg.API.RateBurst)
	}
	out := c.App.Writer
	fmt.Fprint(out, field("Base URL", cfg.API.BaseURL))
	fmt.Fprint(out, field("Timeout", cfg.API.Timeout.String()))
	fmt.Fprint(out, field("Rate limit", rate))
	fmt.Fprint(out, field("Credentials", cfg.Credentials.File))
	fmt.Fprint(out, field("Renew within", cfg.Session.ExpiryThreshold.String()))
	return nil
}
