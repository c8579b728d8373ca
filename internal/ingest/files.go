package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
	"github.com/drfirst/go-rxclaims/internal/domain/pharmacy"
)

const (
	pharmacyExt = ".csv"
	recordExt   = ".json"
)

// ErrTrailingData is returned when a record file holds more than one
// top-level JSON value.
var ErrTrailingData = errors.New("unexpected data after top-level array")

// listFiles returns the regular files in dir ending in ext, sorted by name
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// newBOMReader wraps f, skipping a UTF-8 byte order mark if present
func newBOMReader(f *os.File) *bufio.Reader {
	br := bufio.NewReaderSize(f, 64*1024)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}
	return br
}

// ReadPharmacyFile reads a headerless (chain, npi) CSV file. Rows with
// fewer than two columns are skipped.
func ReadPharmacyFile(path string) (*pharmacy.Directory, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(newBOMReader(f))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	dir := pharmacy.NewDirectory()
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(row) < 2 {
			skipped++
			continue
		}
		dir.Add(row[1], row[0])
	}
	return dir, skipped, nil
}

// ReadRecordFile reads a file holding one JSON array of flat objects.
// Numbers are kept as json.Number.
func ReadRecordFile(path string) ([]claim.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(newBOMReader(f))
	dec.UseNumber()

	var records []claim.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse %s: %w", path, ErrTrailingData)
	}
	return records, nil
}
