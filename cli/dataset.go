package cli

import (
	"fmt"

	"github.com/domainwatch/domainwatch/dataset"
	"github.com/spf13/cobra"
)

func datasetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "dataset",
		Short: "Maintain the domain dataset file",
	}

	c.AddCommand(&cobra.Command{
		Use:   "sort <in> <out>",
		Short: "Order the records of a dataset by domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dataset.SortFile(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sorted %s into %s\n", args[0], args[1])
			return nil
		},
	})
	return c
}
