// Package sampleio persists the query sample so a later run can replay the
// query phase without reloading the store.
//
// A sample file is a compressed msgpack stream: a format tag, the entity
// count, then the entities. Files ending in ".sz" use snappy framing, all
// others zstd.
package sampleio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const formatTag = "tablebench-sample/1"

// maxPrealloc bounds the slice allocated up front from the header count.
const maxPrealloc = 1 << 16

// ErrBadFormat is returned for files that are not sample files.
var ErrBadFormat = errors.New("not a tablebench sample file")

// Write stores entities at path, replacing any existing file atomically.
func Write(path string, entities []models.Entity) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sample-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	cw, err := compressor(path, bw)
	if err != nil {
		return err
	}

	enc := msgpack.NewEncoder(cw)
	if err := enc.EncodeString(formatTag); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := enc.EncodeInt(int64(len(entities))); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range entities {
		if err := enc.Encode(&entities[i]); err != nil {
			return fmt.Errorf("failed to encode entity %d: %w", i, err)
		}
	}

	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sample file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close sample file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename sample file: %w", err)
	}
	return nil
}

// Read loads the entities stored at path.
func Read(path string) ([]models.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file: %w", err)
	}
	defer f.Close()

	r, closeFn, err := decompressor(path, bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer closeFn()

	dec := msgpack.NewDecoder(r)
	tag, err := dec.DecodeString()
	if err != nil || tag != formatTag {
		return nil, fmt.Errorf("%s: %w", path, ErrBadFormat)
	}
	n, err := dec.DecodeInt()
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%s: bad entity count: %w", path, ErrBadFormat)
	}

	// The header count is untrusted; grow as entities actually decode.
	entities := make([]models.Entity, 0, min(n, maxPrealloc))
	for i := range n {
		var e models.Entity
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("%s: entity %d of %d: %w: %w", path, i, n, ErrBadFormat, err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func isSnappy(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".sz")
}

func compressor(path string, w io.Writer) (io.WriteCloser, error) {
	if isSnappy(path) {
		return snappy.NewBufferedWriter(w), nil
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return zw, nil
}

func decompressor(path string, r io.Reader) (io.Reader, func(), error) {
	if isSnappy(path) {
		return snappy.NewReader(r), func() {}, nil
	}
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return zr, zr.Close, nil
}
