package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/nixpig/wardensh/internal/client"
	"github.com/nixpig/wardensh/internal/history"
	"github.com/nixpig/wardensh/internal/logging"
	"github.com/nixpig/wardensh/internal/shell"
	"github.com/nixpig/wardensh/internal/tlsconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// TODO: Inject version at build time.
const version = "0.0.1"

// lineSource is the interactive input of the shell.
type lineSource interface {
	shell.LineSource
	Close() error
}

type cli struct {
	stdout io.Writer
	stderr io.Writer

	// newLines creates the line source. Tests replace it to script input.
	newLines func(completer *shell.Completer, lines []string, size int) (lineSource, error)
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:   stdout,
		stderr:   stderr,
		newLines: newTerminal,
	}
}

func newTerminal(completer *shell.Completer, lines []string, size int) (lineSource, error) {
	return shell.NewTerminal(shell.Prompt, completer, lines, size)
}

func (c *cli) rootCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "wsh",
		Short: "Interactive shell for a warden server",
		Example: "  wsh --socket /tmp/warden.sock\n" +
			"  wsh --socket tcp://localhost:8443 --cert-path client.crt --key-path client.key --ca-cert-path ca.crt",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				fmt.Fprintf(c.stderr, "%s\n", err)
				return err
			}

			if err := c.run(cmd.Context(), cfg); err != nil {
				fmt.Fprintf(c.stderr, "%s\n", err)
				return err
			}

			return nil
		},
	}

	command.CompletionOptions.HiddenDefaultCmd = true
	command.SetOut(c.stdout)
	command.SetErr(c.stderr)

	registerFlags(command.Flags())

	return command
}

func (c *cli) run(ctx context.Context, cfg *config) error {
	logger, err := logging.New(cfg.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var tlsConfig *tls.Config

	if cfg.tls().Enabled() {
		tlsConfig, err = tlsconfig.SetupTLS(cfg.tls())
		if err != nil {
			return err
		}
	}

	conn, err := client.New(&client.Config{
		Target: cfg.socket,
		TLS:    tlsConfig,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	store := history.NewStore(cfg.historyPath, logger)

	lines, err := store.Restore()
	if err != nil {
		logger.Warn("starting with empty history", zap.Error(err))
	}

	buffer := history.NewBuffer(cfg.historySize, lines)

	source, err := c.newLines(shell.NewCompleter(conn, logger), buffer.Lines(), cfg.historySize)
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer source.Close()

	// Closing the source unblocks a pending read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { source.Close() })
	defer stop()

	stdout, stderr := c.stdout, c.stderr
	if t, ok := source.(*shell.Terminal); ok {
		stdout, stderr = t.Stdout(), t.Stderr()
	}

	session := shell.NewSession(&shell.Config{
		Client:  conn,
		Lines:   source,
		Store:   store,
		History: buffer,
		Format:  cfg.output,
		Stdout:  stdout,
		Stderr:  stderr,
		Logger:  logger,
	})

	return session.Run(ctx)
}
