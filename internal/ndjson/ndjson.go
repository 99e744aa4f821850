// Package ndjson reads and writes newline-delimited JSON dumps, transparently
// handling LZ4 frame compression for *.lz4 paths.
package ndjson

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// Extension marks LZ4-frame compressed dumps.
const Extension = ".lz4"

// initialScanBuffer is the starting scanner buffer size.
const initialScanBuffer = 1 << 20

// Compressed reports whether path names an LZ4 dump.
func Compressed(path string) bool {
	return filepath.Ext(path) == Extension
}

// Open opens path for reading, decompressing *.lz4 files.
func Open(path string) (io.Reader, io.Closer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}

	if Compressed(path) {
		return lz4.NewReader(file), file, nil
	}

	return file, file, nil
}

// Read decodes every record of the dump at path with decode. Iteration stops
// at the first error, which is yielded with the zero value.
func Read[T any](ctx context.Context, path string, maxSize int, decode func(index int, line []byte) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		reader, closer, err := Open(path)
		if err != nil {
			yield(zero, err)

			return
		}
		defer closer.Close()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, min(initialScanBuffer, maxSize)), maxSize)

		index := 0

		for scanner.Scan() {
			if ctx.Err() != nil {
				yield(zero, fmt.Errorf("read %s: %w", path, ctx.Err()))

				return
			}

			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			record, decodeErr := decode(index, line)
			if !yield(record, decodeErr) || decodeErr != nil {
				return
			}

			index++
		}

		scanErr := scanner.Err()
		if scanErr != nil {
			yield(zero, fmt.Errorf("scan %s: %w", path, scanErr))
		}
	}
}

// Writer writes a dump, compressing when the path ends in .lz4.
type Writer struct {
	file       *os.File
	compressed *lz4.Writer
	out        io.Writer
}

// Create creates or truncates the dump at path.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := &Writer{file: file, out: file}

	if Compressed(path) {
		w.compressed = lz4.NewWriter(file)
		w.out = w.compressed
	}

	return w, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.out.Write(p)
}

// Close flushes the LZ4 frame and closes the file.
func (w *Writer) Close() error {
	var flushErr error
	if w.compressed != nil {
		flushErr = w.compressed.Close()
	}

	return errors.Join(flushErr, w.file.Close())
}
