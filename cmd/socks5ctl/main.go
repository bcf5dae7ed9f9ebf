// Package main provides socks5ctl, an operator CLI for generating socks5d
// configuration files and adding users to them. It has no command that
// prints or checks an existing file.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	socks5 "github.com/sagansky/socks5"
	"github.com/sagansky/socks5/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "socks5ctl",
		Short: "socks5ctl - create and edit socks5d configuration files",
	}
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage socks5d configuration files",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configAddUserCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var outPath string
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively build a new config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if nonInteractive {
				return writeConfig(outPath, cfg)
			}
			if err := runWizard(cfg); err != nil {
				return err
			}
			return writeConfig(outPath, cfg)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "config.yaml", "path to write the generated config")
	cmd.Flags().BoolVar(&nonInteractive, "defaults", false, "write the default config without prompting")
	return cmd
}

func configAddUserCmd() *cobra.Command {
	var configPath string
	var username string

	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Add a password-auth user to an existing config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if username == "" {
				if err := huh.NewInput().
					Title("Username").
					Value(&username).
					Run(); err != nil {
					return err
				}
			}

			password, err := promptPassword("Password for " + username)
			if err != nil {
				return err
			}

			hash, err := socks5.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			cfg.Auth.Mode = "password"
			cfg.Auth.Users = append(cfg.Auth.Users, config.UserSpec{
				Username:     username,
				PasswordHash: hash,
			})

			return writeConfig(configPath, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "username to add (prompted if omitted)")
	return cmd
}

// runWizard walks the operator through the handful of decisions that
// matter for a first-run socks5d config: where to listen, whether to
// require authentication, and (if so) the initial user list. Each Password
// credential is hashed with bcrypt before it ever reaches the YAML file.
func runWizard(cfg *config.Config) error {
	fmt.Println(titleStyle.Render("socks5d setup"))

	var authMode string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Description("host:port the SOCKS5 server accepts connections on").
				Value(&cfg.Listen.Address),
			huh.NewSelect[string]().
				Title("Authentication").
				Options(
					huh.NewOption("No authentication", "none"),
					huh.NewOption("Username/password", "password"),
				).
				Value(&authMode),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	cfg.Auth.Mode = authMode

	if authMode == "password" {
		for {
			var username string
			if err := huh.NewInput().
				Title("Add a user (leave blank to finish)").
				Value(&username).
				Run(); err != nil {
				return err
			}
			if username == "" {
				break
			}

			password, err := promptPassword("Password for " + username)
			if err != nil {
				return err
			}
			hash, err := socks5.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			cfg.Auth.Users = append(cfg.Auth.Users, config.UserSpec{
				Username:     username,
				PasswordHash: hash,
			})
		}
		if len(cfg.Auth.Users) == 0 {
			return fmt.Errorf("at least one user is required when authentication is enabled")
		}
	}

	var enableUDP bool
	if err := huh.NewConfirm().
		Title("Enable UDP ASSOCIATE relay?").
		Value(&enableUDP).
		Run(); err != nil {
		return err
	}
	cfg.UDP.Enabled = enableUDP

	return cfg.Validate()
}

// promptPassword reads a password without echoing it to the terminal,
// falling back to a huh input (still masked) when stdin isn't a TTY.
func promptPassword(title string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(title + ": ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	var password string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	return password, err
}

func writeConfig(path string, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("wrote %s", path)))
	return nil
}
