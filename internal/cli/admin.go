package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/service"
	"github.com/trafficwise/platform/internal/snapshot"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "admin",
		Short:       "Review submissions and manage profiles",
		Annotations: gated(gateAdmin),
	}
	cmd.AddCommand(
		newOverviewCmd(),
		newPendingCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newUserResultsCmd(),
		newProfilesCmd(),
	)
	return cmd
}

func newOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show the admin dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := appFrom(cmd).api.Overview(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, ov)
		},
	}
}

func newPendingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List activities awaiting review, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acts, err := appFrom(cmd).api.Pending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, acts)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum activities (server default when 0)")
	return cmd
}

func newApproveCmd() *cobra.Command {
	var user string
	var timings map[string]string
	cmd := &cobra.Command{
		Use:   "approve <activity-id>",
		Short: "Publish an activity's timings as a result",
		Long: "Publish an activity's timings as a result. With --user or --timings the\n" +
			"server refuses the approval unless the stored activity still matches.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expect *service.ApproveExpectation
			if user != "" || len(timings) > 0 {
				parsed, err := parseTimings(timings)
				if err != nil {
					return err
				}
				expect = &service.ApproveExpectation{UserID: user, Results: parsed}
			}
			approval, err := appFrom(cmd).api.Approve(cmd.Context(), args[0], expect)
			if err != nil {
				return err
			}
			return printJSON(cmd, approval)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "expected submitter uid")
	cmd.Flags().StringToStringVar(&timings, "timings", nil, "expected timings, e.g. north=12,south=8,east=15,west=10")
	return cmd
}

// parseTimings turns direction=seconds pairs into Timings. Nil in, nil out.
func parseTimings(raw map[string]string) (domain.Timings, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(domain.Timings, len(raw))
	for k, v := range raw {
		dir, ok := domain.ParseDirection(k)
		if !ok {
			return nil, fmt.Errorf("unknown direction %q", k)
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", dir, v)
		}
		out[dir] = secs
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func newRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <activity-id>",
		Short: "Discard a pending activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := appFrom(cmd).api.Reject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, act)
		},
	}
}

func newUserResultsCmd() *cobra.Command {
	var user string
	var limit int
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List a user's published results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := appFrom(cmd).api.Results(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user uid")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (server default when 0)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage user and admin profiles",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every profile",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				profiles, err := appFrom(cmd).api.Profiles(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, profiles)
			},
		},
		newCreateAdminCmd(),
		newEditProfileCmd(),
		&cobra.Command{
			Use:   "delete <uid>",
			Short: "Delete a profile; its activities and results are kept",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := appFrom(cmd).api.DeleteProfile(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			},
		},
		newExportCmd(),
		newImportCmd(),
	)
	return cmd
}

func newCreateAdminCmd() *cobra.Command {
	var input service.CreateAdminInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := appFrom(cmd).api.CreateAdmin(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
	cmd.Flags().StringVar(&input.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	return cmd
}

func newEditProfileCmd() *cobra.Command {
	var update domain.ProfileUpdate
	var userType string
	cmd := &cobra.Command{
		Use:   "edit <uid>",
		Short: "Edit a profile; the role follows the user type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ut, err := domain.ParseUserType(userType)
			if err != nil {
				return err
			}
			update.UserType = ut
			p, err := appFrom(cmd).api.EditProfile(cmd.Context(), args[0], update)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
	cmd.Flags().StringVar(&update.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&update.Email, "email", "", "email address")
	cmd.Flags().StringVar(&update.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&userType, "type", string(domain.UserTypeStudent), "user type: Admin or Student")
	return cmd
}

func newExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download every profile as a spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := snapshot.ParseFormat(format)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(filepath.Clean(out))
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return appFrom(cmd).api.Export(cmd.Context(), string(f), w)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(snapshot.FormatXLSX), "xlsx or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Re-import a profile snapshot; nothing is written if any row is invalid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}
			f, err := snapshot.ParseFormat(format)
			if err != nil {
				return err
			}
			file, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer file.Close()

			n, err := appFrom(cmd).api.Import(cmd.Context(), string(f), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d profiles.\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "xlsx or csv (default: from the file extension)")
	return cmd
}
