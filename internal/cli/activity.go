package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/trafficwise/platform/internal/domain"
)

func newSubmitCmd() *cobra.Command {
	paths := make(map[domain.Direction]*string, len(domain.Directions))
	var key string
	cmd := &cobra.Command{
		Use:         "submit",
		Short:       "Upload one video per direction for processing",
		Annotations: gated(gateMember),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make(map[domain.Direction]string, len(paths))
			for dir, p := range paths {
				if *p != "" {
					files[dir] = *p
				}
			}
			if key == "" {
				key = uuid.NewString()
			}
			act, err := appFrom(cmd).api.Submit(cmd.Context(), files, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Submitted %s for review.\n", act.ID)
			return printJSON(cmd, act)
		},
	}
	for _, dir := range domain.Directions {
		paths[dir] = cmd.Flags().String(string(dir), "", fmt.Sprintf("%s approach video (mp4 or mov)", dir))
	}
	cmd.Flags().StringVar(&key, "key", "", "idempotency key (default: random)")
	return cmd
}

func newResultsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:         "results",
		Short:       "List your published results",
		Annotations: gated(gateMember),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := appFrom(cmd).api.MyResults(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (server default when 0)")
	return cmd
}
