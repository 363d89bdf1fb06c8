// Package exporter writes tabular results, primarily trial cost
// estimates, into CSV files under a workspace's exports directory.
package exporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/m4xw311/trialdesk/errors"
)

// CostItem is one line of a cost estimate.
type CostItem struct {
	Category    string  `json:"category"` // material, labor, regulatory, other
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
}

// Total is quantity times unit cost.
func (i CostItem) Total() float64 {
	return i.Quantity * i.UnitCost
}

// CostEstimate is a full estimate for one trial activity.
type CostEstimate struct {
	Title string     `json:"title"`
	Items []CostItem `json:"items"`
}

// GrandTotal sums every item.
func (e CostEstimate) GrandTotal() float64 {
	var total float64
	for _, item := range e.Items {
		total += item.Total()
	}
	return total
}

// ExportCostEstimate flattens the estimate into a CSV file in exportsDir
// and returns the written path. The file name is derived from the title
// and a timestamp so successive exports never collide.
func ExportCostEstimate(exportsDir string, est CostEstimate) (string, error) {
	header := []string{"category", "description", "quantity", "unit_cost", "total"}
	rows := make([][]string, 0, len(est.Items)+1)
	for _, item := range est.Items {
		rows = append(rows, []string{
			item.Category,
			item.Description,
			strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			strconv.FormatFloat(item.UnitCost, 'f', 2, 64),
			strconv.FormatFloat(item.Total(), 'f', 2, 64),
		})
	}
	rows = append(rows, []string{"", "TOTAL", "", "", strconv.FormatFloat(est.GrandTotal(), 'f', 2, 64)})

	name := fmt.Sprintf("%s_%s.csv", sanitizeFileName(est.Title), time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(exportsDir, name)
	if err := ExportRows(path, header, rows); err != nil {
		return "", err
	}
	return path, nil
}

// ExportRows writes a generic CSV table.
func ExportRows(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create export directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create export file '%s'", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "failed to write CSV header")
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write CSV row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "failed to flush CSV file '%s'", path)
	}
	return nil
}

func sanitizeFileName(title string) string {
	if title == "" {
		return "cost_estimate"
	}
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ', r == '-', r == '_':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "cost_estimate"
	}
	return string(out)
}
