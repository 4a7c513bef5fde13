package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories [jurisdiction]",
		Short: "List category labels offered to the provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			id := a.cfg.Categories.Jurisdiction
			if len(args) == 1 {
				id = args[0]
			}
			j, err := cat.Jurisdiction(id)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "known jurisdictions: %v\n", cat.IDs())
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", j.Name, j.ID)
			for _, c := range j.Categories {
				fmt.Fprintf(out, "  %-8s %s\n", c.Type, c.Name)
			}
			return nil
		},
	}
}
