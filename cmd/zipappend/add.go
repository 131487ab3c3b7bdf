package main

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/martin-sucha/zipappend"
)

const copyChunkSize = 256 * 1024

func buildAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <archive> <file>...",
		Short: "Append files to an archive, creating it if needed",
		Long: `Appends each file as a stored (uncompressed) entry. The entry name
is the file's base name, its modification time and permission bits are
taken from the file, and the CRC-32 is computed before writing so the
entry's headers are complete up front.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runAdd,
	}
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	archive, err := openArchive(ctx, args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	for _, path := range args[1:] {
		if err := addFile(cmd, archive, path); err != nil {
			return err
		}
	}
	if err := archive.Finalize(ctx); err != nil {
		return err
	}
	return archive.Close()
}

func addFile(cmd *cobra.Command, archive *zipappend.Archive, path string) error {
	ctx := cmd.Context()
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	hash := crc32.NewIEEE()
	if _, err := io.Copy(hash, f); err != nil {
		return err
	}
	name := filepath.Base(path)
	err = archive.Append(ctx, name, hash.Sum32(), uint64(info.Size()), info.ModTime(), info.Mode())
	if err != nil {
		return err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, copyChunkSize)
	var offset int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := archive.WriteFileData(ctx, buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s (%d bytes)\n", name, info.Size())
	return nil
}
