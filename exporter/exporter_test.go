package exporter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportCostEstimate(t *testing.T) {
	dir := t.TempDir()

	est := CostEstimate{
		Title: "Site Initiation Visit",
		Items: []CostItem{
			{Category: "labor", Description: "CRA travel day", Quantity: 2, UnitCost: 850},
			{Category: "regulatory", Description: "IRB submission fee", Quantity: 1, UnitCost: 2500},
		},
	}

	path, err := ExportCostEstimate(dir, est)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "Site_Initiation_Visit_") {
		t.Errorf("unexpected file name: %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Header + two items + total row.
	if len(records) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(records))
	}
	if records[0][0] != "category" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][4] != "1700.00" {
		t.Errorf("unexpected line total: %v", records[1])
	}
	if records[3][1] != "TOTAL" || records[3][4] != "4200.00" {
		t.Errorf("unexpected grand total row: %v", records[3])
	}
}

func TestGrandTotal(t *testing.T) {
	est := CostEstimate{Items: []CostItem{
		{Quantity: 3, UnitCost: 10},
		{Quantity: 0.5, UnitCost: 100},
	}}
	if got := est.GrandTotal(); got != 80 {
		t.Errorf("expected 80, got %v", got)
	}
}
