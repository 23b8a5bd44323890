package sqlite

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ExportJSONL writes one JSON record per line to path, in the enumeration
// order of records, and returns the number written. The file is replaced
// atomically using the temp-file, fsync, rename pattern. When compress is
// true the stream is zstd-compressed.
func ExportJSONL(path string, records collection.Enumerable[*types.Record], compress bool) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	buf := bufio.NewWriter(tmp)
	var w io.Writer = buf
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(buf)
		if err != nil {
			return fail(fmt.Errorf("creating zstd encoder: %w", err))
		}
		w = enc
	}

	n := 0
	for _, r := range records.All() {
		line, err := json.Marshal(r)
		if err != nil {
			return fail(fmt.Errorf("marshal record %s: %w", r.RecordID, err))
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
		n++
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fail(fmt.Errorf("closing zstd encoder: %w", err))
		}
	}
	if err := buf.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}

// ImportJSONL reads records from a JSONL file written by ExportJSONL or by
// hand. Compressed input is detected by its magic number. Empty and malformed
// lines are skipped.
func ImportJSONL(path string) ([]*types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var records []*types.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 || !json.Valid(line) {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}
