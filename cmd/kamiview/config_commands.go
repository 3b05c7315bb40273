package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"kamiview/internal/config"
	"kamiview/internal/ipc"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap the kamiview configuration",
	}
	configCmd.AddCommand(
		newConfigInitCommand(ctx),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return configCmd
}

// configCheck is one line of `config validate` output.
type configCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`

	kind statusKind
}

type configReport struct {
	ConfigPath   string        `json:"config_path"`
	ConfigExists bool          `json:"config_exists"`
	SocketPath   string        `json:"socket_path"`
	Checks       []configCheck `json:"checks"`
	Valid        bool          `json:"valid"`
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveConfigTarget(targetPath)
			if err != nil {
				return err
			}
			if err := writeSampleConfig(target, overwrite); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{"path": target})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "The bridge socket defaults to <state_dir>/bridge.sock; set paths.socket_path or KAMIVIEW_SOCKET if the desktop app listens elsewhere.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing configuration file")
	return cmd
}

func resolveConfigTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func writeSampleConfig(target string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if !overwrite {
		_, err := os.Stat(target)
		switch {
		case err == nil:
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := config.CreateSample(target); err != nil {
		return fmt.Errorf("create sample config: %w", err)
	}
	return nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Check the configuration and the bridge socket location",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			report := buildConfigReport(cfg, path, exists)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Configuration", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, check := range report.Checks {
					fmt.Fprintln(out, renderStatusLine(check.Name, check.kind, check.Detail, colorize))
				}
				if report.Valid {
					fmt.Fprintln(out, "Configuration valid")
				}
			}
			if !report.Valid {
				return errors.New("configuration has errors")
			}
			return nil
		},
	}
}

func buildConfigReport(cfg *config.Config, path string, exists bool) configReport {
	report := configReport{ConfigPath: path, ConfigExists: exists, SocketPath: cfg.Paths.SocketPath, Valid: true}
	add := func(name string, kind statusKind, detail string) {
		report.Checks = append(report.Checks, configCheck{Name: name, Status: statusKindLabel(kind), Detail: detail, kind: kind})
		if kind == statusError {
			report.Valid = false
		}
	}

	if exists {
		add("Config", statusOK, path)
	} else {
		add("Config", statusInfo, path+" (not found, defaults used)")
	}

	socketDir := filepath.Dir(cfg.Paths.SocketPath)
	if err := ipc.CheckSocketDir(socketDir); err != nil {
		add("Socket dir", statusError, err.Error())
	} else {
		add("Socket dir", statusOK, socketDir)
	}

	info, err := os.Stat(cfg.Paths.SocketPath)
	switch {
	case err == nil && info.Mode()&os.ModeSocket != 0:
		add("Bridge", statusOK, cfg.Paths.SocketPath)
	case err == nil:
		add("Bridge", statusError, cfg.Paths.SocketPath+" is not a socket")
	default:
		add("Bridge", statusWarn, cfg.Paths.SocketPath+" (not listening; start the desktop app)")
	}

	add("Logs", statusInfo, cfg.Paths.LogDir)
	add("Downloads", statusInfo, cfg.Paths.DownloadDir)
	if topic := cfg.Notifications.NtfyTopic; topic != "" {
		add("Notify", statusInfo, topic)
	} else {
		add("Notify", statusInfo, "disabled")
	}
	return report
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
