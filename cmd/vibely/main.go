// Command vibely is a terminal client for the Vibely API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vibely/internal/client/api"
	clientconfig "vibely/internal/client/config"
	"vibely/internal/client/imagehost"
	"vibely/internal/client/tokenstore"
)

const usage = `usage: vibely <command> [flags] [args]

commands:
  signup    -username -email -password [-name]
  login     -email -password
  logout
  me
  feed      [-more N] [-i]
  post      [-image file] [-private] <text>
  like      <post-id>
  comments  <post-id>
  comment   [-reply comment-id] <post-id> <text>
  search    <prefix>
  username  <new-username>
  profile   [-name name] [-avatar file-or-url]
  upload    <file>
  chats
  chat      <user-id>
`

// app carries what every command needs.
type app struct {
	cfg    *clientconfig.Config
	client *api.Client
	images *imagehost.Client
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := clientconfig.Load(".")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "vibely: %v\n", err)
		return 1
	}
	a, err := newApp(cfg, stdin, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "vibely: %v\n", err)
		return 1
	}

	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "vibely: unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, a, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "vibely: %s\n", describe(err))
		return 1
	}
	return 0
}

func newApp(cfg *clientconfig.Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	client, err := api.New(cfg.APIURL, tokenstore.NewFile(cfg.TokenFile), api.WithTimeout(cfg.Timeout), api.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	images, err := imagehost.New(cfg.ImageHostURL, cfg.ImageHostKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	images.Token = client.Token

	return &app{cfg: cfg, client: client, images: images, logger: logger, stdin: stdin, stdout: stdout}, nil
}

// describe renders an error the way the app shows alerts: the normalized
// message for API errors, the plain text otherwise.
func describe(err error) string {
	if apiErr, ok := api.AsError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}
