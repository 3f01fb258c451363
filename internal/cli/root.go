// Package cli is the trafficctl command tree. Every command is gated the way
// the app shell gates its screens: the session and role are resolved first
// and the command runs only when the gate allows it.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trafficwise/platform/internal/access"
	"github.com/trafficwise/platform/internal/client"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/session"
)

const gateAnnotation = "gate"

// Gate names used in command annotations.
const (
	gatePublic  = "public"
	gateSession = "session"
	gateMember  = "member"
	gateAdmin   = "admin"
)

// RedirectError reports a command refused by its gate.
type RedirectError struct {
	Decision access.Decision
}

func (e *RedirectError) Error() string {
	msg := fmt.Sprintf("not allowed here: go to %s", e.Decision.Target)
	if e.Decision.Notice != "" {
		msg += " (" + e.Decision.Notice + ")"
	}
	return msg
}

// app is the per-invocation shell: API client, identity provider, session
// observer and role resolver.
type app struct {
	api      *client.Client
	identity *client.Identity
	observer *session.Observer
	resolver *session.Resolver
	cleanup  []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

// NewRootCmd builds the trafficctl command tree.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "trafficctl",
		Short:         "Submit intersection videos and review traffic timings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(v); err != nil {
				return err
			}
			return open(cmd, v)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a := appFrom(cmd); a != nil {
				a.close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.config/trafficctl/config.yaml)")
	flags.String("api", "http://localhost:3100", "API base URL")
	flags.String("session", "", "session file (default $HOME/.config/trafficctl/session.yaml)")
	flags.Duration("timeout", 10*time.Minute, "HTTP timeout; covers upload and processing")
	flags.Duration("wait", 15*time.Second, "how long to wait for the session and role to resolve")
	flags.Bool("verbose", false, "log to stderr")
	v.BindPFlag("config", flags.Lookup("config"))
	v.BindPFlag("api_url", flags.Lookup("api"))
	v.BindPFlag("session_file", flags.Lookup("session"))
	v.BindPFlag("timeout", flags.Lookup("timeout"))
	v.BindPFlag("wait", flags.Lookup("wait"))
	v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(
		newSignUpCmd(),
		newSignInCmd(),
		newSignOutCmd(),
		newWhoAmICmd(),
		newLinkCmd(),
		newSubmitCmd(),
		newResultsCmd(),
		newAdminCmd(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(v *viper.Viper) error {
	v.SetEnvPrefix("TRAFFICCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "trafficctl")
}

// open wires the shell for this invocation, restores the stored session and
// evaluates the command's gate.
func open(cmd *cobra.Command, v *viper.Viper) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if v.GetBool("verbose") {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	sessionFile := v.GetString("session_file")
	if sessionFile == "" {
		sessionFile = filepath.Join(configDir(), "session.yaml")
	}

	a := &app{api: client.New(v.GetString("api_url"), v.GetDuration("timeout"))}
	a.identity = client.NewIdentity(a.api, client.NewFileStore(sessionFile))
	a.observer = session.NewObserver()
	a.resolver = session.NewResolver(a.identity, v.GetDuration("wait"), logger)
	a.cleanup = append(a.cleanup, a.resolver.Attach(a.observer), a.observer.Bind(a.identity))

	ctx := context.WithValue(cmd.Context(), appKey{}, a)
	cmd.SetContext(ctx)

	gate := gateFor(cmd)
	if gate == nil {
		return nil
	}
	if err := a.identity.Restore(ctx); err != nil {
		logger.Warn("could not restore session", "error", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, v.GetDuration("wait"))
	defer cancel()
	d, err := access.Await(waitCtx, a.observer, a.resolver, gate)
	if err != nil {
		return err
	}
	if d.Outcome == access.Allow {
		return nil
	}
	return &RedirectError{Decision: d}
}

// gateFor returns the gate of the nearest annotated command, or nil for
// ungated commands.
func gateFor(cmd *cobra.Command) access.Gate {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Annotations[gateAnnotation] {
		case gatePublic:
			return access.Public
		case gateSession:
			return access.SessionOnly
		case gateMember:
			return access.RoleRequired("")
		case gateAdmin:
			return access.RoleRequired(domain.RoleAdmin)
		}
	}
	return nil
}

func gated(name string) map[string]string {
	return map[string]string{gateAnnotation: name}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
