package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Writer persists iteration metrics as CSV under a base directory.
type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return &Writer{baseDir: baseDir}, nil
}

func (w *Writer) WriteIterations(records []IterationMetric) error {
	path := filepath.Join(w.baseDir, "iterations.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create iterations file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	header := []string{"iteration", "nodes_expanded", "moves_added", "nodes_refreshed", "book_size", "duration_ms"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Iteration),
			strconv.Itoa(r.NodesExpanded),
			strconv.Itoa(r.MovesAdded),
			strconv.Itoa(r.NodesRefreshed),
			strconv.Itoa(r.BookSize),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return writer.Error()
}
