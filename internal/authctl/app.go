// Package authctl implements the operator command line for authcore: key
// generation, webhook signing, password hashing and session introspection.
package authctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/server/webhook"
	"google.golang.org/grpc"
)

// WebhookSecretEnv is read by sign-webhook before prompting.
const WebhookSecretEnv = "AUTHCORE_WEBHOOK_SECRET"

const defaultGRPCAddr = "localhost:50051"

type App struct {
	out    io.Writer
	stdin  io.Reader
	getenv func(string) string

	// dialOpts are appended to every gRPC dial.
	dialOpts []grpc.DialOption
	timeout  time.Duration
}

func NewApp(out io.Writer, stdin io.Reader) *App {
	return &App{out: out, stdin: stdin, getenv: os.Getenv, timeout: 5 * time.Second}
}

type command struct {
	usage string
	run   func(a *App, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"keygen":        {"keygen                          print a new 32-byte encryption key (hex)", (*App).keygen},
	"sign-webhook":  {"sign-webhook [-file path]       sign a webhook body read from file or stdin", (*App).signWebhook},
	"hash-password": {"hash-password                   hash a password read from the terminal", (*App).hashPassword},
	"introspect":    {"introspect [-addr a] <token>    ask the server whether an access token is live", (*App).introspect},
	"whoami":        {"whoami [-addr a]                show the identity behind a prompted access token", (*App).whoami},
	"health":        {"health [-addr a]                check the sessions service health", (*App).health},
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "usage: authctl <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(a.out, "  "+commands[name].usage)
	}
}

// Run executes the command in args and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(a.out, "unknown command %q\n", args[0])
		a.usage()
		return 2
	}

	if err := cmd.run(a, ctx, args[1:]); err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		if errors.Is(err, ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func (a *App) keygen(_ context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: keygen takes no arguments", ErrUsage)
	}
	fmt.Fprintln(a.out, cryptox.GenerateKey())
	return nil
}

func (a *App) signWebhook(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("sign-webhook", flag.ContinueOnError)
	fs.SetOutput(a.out)
	file := fs.String("file", "", "path to the body; stdin when empty")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	var body []byte
	var err error
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		body, err = io.ReadAll(io.LimitReader(a.stdin, webhook.MaxBodyBytes+1))
	}
	if err != nil {
		return err
	}
	if len(body) > webhook.MaxBodyBytes {
		return fmt.Errorf("body exceeds %d bytes", webhook.MaxBodyBytes)
	}

	secret := []byte(a.getenv(WebhookSecretEnv))
	if len(secret) == 0 {
		if secret, err = GetPassword(a.out, "Webhook secret"); err != nil {
			return err
		}
	}
	defer common.WipeByteArray(secret)

	v, err := webhook.NewVerifier(secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", common.WebhookSignatureHeaderName, v.Sign(body))
	return nil
}

func (a *App) hashPassword(_ context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: hash-password takes no arguments", ErrUsage)
	}

	pw, err := GetPassword(a.out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	hasher, err := cryptox.NewPasswordHasher(cryptox.DefaultPasswordParams)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}

// parseAddr parses the shared -addr flag and returns the remaining args.
func (a *App) parseAddr(name string, args []string) (string, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	addr := fs.String("addr", defaultGRPCAddr, "sessions service address")
	if err := fs.Parse(args); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return *addr, fs.Args(), nil
}

func (a *App) withClient(ctx context.Context, addr string, fn func(ctx context.Context, c *SessionsClient) error) error {
	c, err := Dial(addr, a.dialOpts...)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return fn(ctx, c)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) introspect(ctx context.Context, args []string) error {
	addr, rest, err := a.parseAddr("introspect", args)
	if err != nil {
		return err
	}
	if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
		return fmt.Errorf("%w: introspect needs exactly one token", ErrUsage)
	}

	return a.withClient(ctx, addr, func(ctx context.Context, c *SessionsClient) error {
		res, err := c.Introspect(ctx, rest[0])
		if err != nil {
			return err
		}
		return a.printJSON(res)
	})
}

func (a *App) whoami(ctx context.Context, args []string) error {
	addr, _, err := a.parseAddr("whoami", args)
	if err != nil {
		return err
	}

	token, err := GetPassword(a.out, "Access token")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(token)

	return a.withClient(ctx, addr, func(ctx context.Context, c *SessionsClient) error {
		res, err := c.WhoAmI(ctx, string(token))
		if err != nil {
			return err
		}
		return a.printJSON(res)
	})
}

func (a *App) health(ctx context.Context, args []string) error {
	addr, _, err := a.parseAddr("health", args)
	if err != nil {
		return err
	}

	return a.withClient(ctx, addr, func(ctx context.Context, c *SessionsClient) error {
		st, err := c.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, st)
		return nil
	})
}
