package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadNodes reads a nodes table. Header names are matched case-sensitively
// against NodeColumns and the neo4j import aliases; column order is free.
func ReadNodes(r io.Reader) ([]Node, error) {
	var nodes []Node
	err := readRecords(r, NodeColumns, func(rec map[string]string) {
		nodes = append(nodes, scanNode(rec))
	})
	if err != nil {
		return nil, fmt.Errorf("reading nodes: %w", err)
	}
	return nodes, nil
}

// ReadEdges reads an edges table.
func ReadEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge
	err := readRecords(r, EdgeColumns, func(rec map[string]string) {
		edges = append(edges, scanEdge(rec))
	})
	if err != nil {
		return nil, fmt.Errorf("reading edges: %w", err)
	}
	return edges, nil
}

// WriteNodes writes nodes in the fixed column order, blanks as NA.
func WriteNodes(w io.Writer, nodes []Node) error {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		rows[i] = n.values()
	}
	return writeRecords(w, NodeColumns, rows)
}

// WriteEdges writes edges in the fixed column order, blanks as NA.
func WriteEdges(w io.Writer, edges []Edge) error {
	rows := make([][]string, len(edges))
	for i, e := range edges {
		rows[i] = e.values()
	}
	return writeRecords(w, EdgeColumns, rows)
}

// LoadNodes opens and reads a nodes file.
func LoadNodes(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening nodes file: %w", err)
	}
	defer f.Close()
	return ReadNodes(f)
}

// LoadEdges opens and reads an edges file.
func LoadEdges(path string) ([]Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening edges file: %w", err)
	}
	defer f.Close()
	return ReadEdges(f)
}

// SaveNodes writes a nodes file, replacing any existing one.
func SaveNodes(path string, nodes []Node) error {
	return saveFile(path, func(w io.Writer) error { return WriteNodes(w, nodes) })
}

// SaveEdges writes an edges file, replacing any existing one.
func SaveEdges(path string, edges []Edge) error {
	return saveFile(path, func(w io.Writer) error { return WriteEdges(w, edges) })
}

func saveFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func readRecords(r io.Reader, columns []string, emit func(map[string]string)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		if known[h] {
			index[h] = i
		}
	}
	if _, ok := index[columns[0]]; !ok {
		return fmt.Errorf("missing required column %q", columns[0])
	}

	line := 1
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec := make(map[string]string, len(columns))
		for col, i := range index {
			if i < len(fields) {
				rec[col] = readValue(col, fields[i])
			}
		}
		emit(rec)
	}
}

func writeRecords(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = writeValue(v)
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readValue applies the missing-value convention for one cell.
func readValue(column, v string) string {
	v = strings.TrimSpace(v)
	switch {
	case v == "None":
		return ""
	case v == Missing && freeText[column]:
		return ""
	}
	return v
}

func writeValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return Missing
	}
	return v
}

func splitPipe(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinPipe(parts []string) string {
	return strings.Join(parts, "|")
}
