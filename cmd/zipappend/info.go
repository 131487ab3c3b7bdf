package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>",
		Short: "Show an archive's trailer: entry count, directory layout, zip64",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	info := archive.Info()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entries:          %d\n", info.Records)
	fmt.Fprintf(out, "directory offset: %d\n", info.DirectoryOffset)
	fmt.Fprintf(out, "directory size:   %d\n", info.DirectorySize)
	fmt.Fprintf(out, "zip64:            %v\n", info.Zip64)
	if info.Comment != "" {
		fmt.Fprintf(out, "comment:          %s\n", info.Comment)
	}
	return nil
}
