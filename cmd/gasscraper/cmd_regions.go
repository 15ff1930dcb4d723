package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions that would be scraped",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, selected, err := loadRegions(context.Background())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLOCATION KEY")
			for _, r := range selected {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, r.LocationKey)
			}
			return tw.Flush()
		},
	}
}
