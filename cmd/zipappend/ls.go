package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func buildLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <archive>",
		Short: "List the entries recorded in an archive's central directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runLs,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	entries, err := archive.Entries()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			e.Mode, e.UncompressedSize, e.Modified.Format("2006-01-02 15:04"), e.Name)
	}
	return w.Flush()
}
