package collector

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// table is a header plus up to maxRows sampled rows. Total counts every row.
type table struct {
	Header []string
	Rows   [][]string
	Total  int64
}

// readTable reads a CSV, JSON array or NDJSON file.
func readTable(path string, format core.Format, maxRows int) (*table, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from walking the configured source root
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	switch format {
	case core.FormatCSV:
		return readCSV(f, maxRows)
	case core.FormatJSON:
		return readJSONArray(f, maxRows)
	case core.FormatNDJSON:
		return readNDJSON(f, maxRows)
	}
	return nil, fmt.Errorf("format %s is not tabular", format)
}

func readCSV(r io.Reader, maxRows int) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv file")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	t := &table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", t.Total+2, err)
		}
		t.Total++
		if len(t.Rows) < maxRows {
			t.Rows = append(t.Rows, rec)
		}
	}
	return t, nil
}

// recordTable accumulates JSON objects into rows over the union of their keys.
type recordTable struct {
	table
	index   map[string]int
	records []map[string]any
	maxRows int
}

func newRecordTable(maxRows int) *recordTable {
	return &recordTable{index: make(map[string]int), maxRows: maxRows}
}

func (rt *recordTable) add(rec map[string]any) {
	rt.Total++
	if len(rt.records) >= rt.maxRows {
		return
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	// New keys keep a stable order within one record.
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := rt.index[k]; !ok {
			rt.index[k] = len(rt.Header)
			rt.Header = append(rt.Header, k)
		}
	}
	rt.records = append(rt.records, rec)
}

func (rt *recordTable) finish() *table {
	for _, rec := range rt.records {
		row := make([]string, len(rt.Header))
		for k, v := range rec {
			row[rt.index[k]] = cell(v)
		}
		rt.Rows = append(rt.Rows, row)
	}
	return &rt.table
}

func readJSONArray(r io.Reader, maxRows int) (*table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.New("json file is not an array of objects")
	}

	rt := newRecordTable(maxRows)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("json record %d: %w", rt.Total+1, err)
		}
		rt.add(rec)
	}
	if rt.Total == 0 {
		return nil, errors.New("json array is empty")
	}
	return rt.finish(), nil
}

func readNDJSON(r io.Reader, maxRows int) (*table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)

	rt := newRecordTable(maxRows)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("ndjson line %d: %w", line, err)
		}
		rt.add(rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ndjson: %w", err)
	}
	if rt.Total == 0 {
		return nil, errors.New("ndjson file has no records")
	}
	return rt.finish(), nil
}

// cell renders a decoded JSON value as a profile-friendly string.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
