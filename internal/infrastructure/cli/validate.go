package cli

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/orgsync/pkg/storage"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:     "validate <spec>",
	Aliases: []string{"lint"},
	Short:   "Check a spec file without contacting the remote (alias: lint)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := storage.LoadOrgSpec(args[0])
		if err != nil {
			return MapError(err)
		}
		if err := spec.Validate(); err != nil {
			return MapError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Spec for %s is valid.", spec.Name)))
		fmt.Fprintf(out, "Repositories (%d): %s\n", len(spec.Repositories), strings.Join(spec.RepositoryNames(), ", "))
		fmt.Fprintf(out, "Projects: %d\n", len(spec.Projects))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(validateCmd)
}
