package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/martin-sucha/zipappend"
	"github.com/martin-sucha/zipappend/s3store"
)

// version is set at build time via -ldflags.
var version = "dev"

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "zipappend",
		Version: version,
		Short:   "Create and append to ZIP archives on local files or S3 objects",
		Long: `zipappend assembles ZIP archives in place. Entries are stored
uncompressed, and an existing archive is extended by rewriting only its
central directory, so payload bytes already in the archive are never
touched. Archives are promoted to the ZIP64 format automatically when
any size, offset or entry count outgrows the classic fields.

The archive argument is either a filesystem path or an s3://bucket/key
URL. S3 access uses the standard AWS credential and region chain.

Commands:
  add    Append files to an archive, creating it if needed
  ls     List the entries recorded in an archive's central directory
  info   Show an archive's trailer: entry count, directory layout, zip64

Examples:
  zipappend add backup.zip notes.txt photos/cat.jpg
  zipappend add s3://bucket/backup.zip notes.txt
  zipappend ls backup.zip
  zipappend info s3://bucket/backup.zip`,
		SilenceUsage: true,
	}

	cmd.AddCommand(buildAddCommand())
	cmd.AddCommand(buildLsCommand())
	cmd.AddCommand(buildInfoCommand())
	return cmd
}

// openArchive picks the store backend from the URL scheme.
func openArchive(ctx context.Context, url string) (*zipappend.Archive, error) {
	if strings.HasPrefix(url, "s3://") {
		opener, err := s3store.New(ctx)
		if err != nil {
			return nil, err
		}
		return zipappend.OpenStore(ctx, opener, url)
	}
	return zipappend.Open(ctx, url)
}
