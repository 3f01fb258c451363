package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/trafficwise/platform/internal/access"
	"github.com/trafficwise/platform/internal/handler"
	"github.com/trafficwise/platform/internal/service"
)

func newSignUpCmd() *cobra.Command {
	var input service.SignUpInput
	cmd := &cobra.Command{
		Use:         "signup",
		Short:       "Create an account and sign in",
		Annotations: gated(gatePublic),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := appFrom(cmd).identity.SignUp(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s. Next: %s\n", res.Profile.Email, res.Landing)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&input.Password, "password", "", "password (at least 6 characters)")
	cmd.Flags().StringVar(&input.ConfirmPassword, "confirm", "", "password again")
	return cmd
}

func newSignInCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:         "signin",
		Short:       "Sign in with email and password",
		Annotations: gated(gatePublic),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := appFrom(cmd).identity.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s). Next: %s\n", res.Profile.Email, res.Profile.Role, res.Landing)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "signout",
		Short:       "Sign out and forget the stored session",
		Annotations: gated(gateSession),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).identity.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Show the signed-in identity and role",
		Annotations: gated(gateMember),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			snap := a.observer.Current()
			role := a.resolver.Current()
			return printJSON(cmd, map[string]interface{}{
				"identity": snap.Identity,
				"role":     role.Role,
				"home":     access.Landing(role.Role),
			})
		},
	}
}

// newLinkCmd routes an emailed action link. It needs no session.
func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <url>",
		Short: "Open an emailed action link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			d, err := access.DispatchURL(args[0], logger)
			if err != nil {
				return err
			}
			return printJSON(cmd, handler.LinkDecision{Outcome: d.Outcome.String(), Target: d.Target, Notice: d.Notice})
		},
	}
}
