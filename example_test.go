package zipappend_test

import (
	"context"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/martin-sucha/zipappend"
)

// addFile appends one local file to the archive: the CRC-32 is
// computed first so the entry's headers are complete before any
// payload bytes are written.
func addFile(ctx context.Context, archive *zipappend.Archive, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	if _, err = io.Copy(crc, file); err != nil {
		return err
	}
	err = archive.Append(ctx, filepath.Base(path), crc.Sum32(), uint64(info.Size()), info.ModTime(), info.Mode())
	if err != nil {
		return err
	}

	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	var offset int64
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if _, werr := archive.WriteFileData(ctx, buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Opening an existing archive appends after its entries; a missing
	// file starts a new archive.
	archive, err := zipappend.Open(ctx, "backup.zip")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	for _, path := range []string{"notes.txt", "photos/cat.jpg"} {
		if err := addFile(ctx, archive, path); err != nil {
			log.Fatal(err)
		}
	}

	if err := archive.Finalize(ctx); err != nil {
		log.Fatal(err)
	}
	if err := archive.Close(); err != nil {
		log.Fatal(err)
	}
}
