package excel

import (
	"fmt"
	"io"

	"atomsense/ports"

	"github.com/xuri/excelize/v2"
)

const (
	AtomsSheet  = "atoms"
	LegendSheet = "legend"
)

var (
	atomHeaders   = []string{"atom_index", "element", "attempts", "samples", "dispersion", "level", "color"}
	legendHeaders = []string{"level", "color", "lower_bound"}
)

// Export builds a workbook with one row per atom and the level legend.
func Export(run *ports.RunRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", AtomsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(LegendSheet); err != nil {
		return nil, err
	}

	styles := make(map[string]int)
	fill := func(color string) (int, error) {
		if id, ok := styles[color]; ok {
			return id, nil
		}
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return 0, fmt.Errorf("style for %s: %w", color, err)
		}
		styles[color] = id
		return id, nil
	}

	if err := writeRow(f, AtomsSheet, 1, toRow(atomHeaders)); err != nil {
		return nil, err
	}
	for i, a := range run.Annotations {
		rowIdx := i + 2
		element := ""
		if a.AtomIndex < len(run.Elements) {
			element = run.Elements[a.AtomIndex]
		}
		var dispersion, level, color interface{}
		if a.Dispersion != nil {
			dispersion = *a.Dispersion
		}
		if a.Level != nil {
			level = *a.Level
			if c, ok := run.Payload.ColorForLevel(*a.Level); ok {
				color = c
			}
		}
		row := []interface{}{a.AtomIndex, element, a.Attempts, a.Samples, dispersion, level, color}
		if err := writeRow(f, AtomsSheet, rowIdx, row); err != nil {
			return nil, err
		}
		if c, ok := color.(string); ok {
			id, err := fill(c)
			if err != nil {
				return nil, err
			}
			cell, _ := excelize.CoordinatesToCellName(len(atomHeaders), rowIdx)
			if err := f.SetCellStyle(AtomsSheet, cell, cell, id); err != nil {
				return nil, err
			}
		}
	}

	if err := writeRow(f, LegendSheet, 1, toRow(legendHeaders)); err != nil {
		return nil, err
	}
	nbins := len(run.Payload.Highlights)
	for i, h := range run.Payload.Highlights {
		rowIdx := i + 2
		// lowest dispersion that rounds to this level
		lower := run.Thresholds.Bottom + (float64(h.Level)-0.5)/float64(nbins)*(run.Thresholds.Top-run.Thresholds.Bottom)
		if err := writeRow(f, LegendSheet, rowIdx, []interface{}{h.Level, h.Color, lower}); err != nil {
			return nil, err
		}
		id, err := fill(h.Color)
		if err != nil {
			return nil, err
		}
		cell, _ := excelize.CoordinatesToCellName(2, rowIdx)
		if err := f.SetCellStyle(LegendSheet, cell, cell, id); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Write streams the workbook of run to w.
func Write(w io.Writer, run *ports.RunRecord) error {
	f, err := Export(run)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// WriteXLSX saves the workbook of run at path.
func WriteXLSX(path string, run *ports.RunRecord) error {
	f, err := Export(run)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func toRow(headers []string) []interface{} {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}

func writeRow(f *excelize.File, sheet string, rowIdx int, values []interface{}) error {
	for c, v := range values {
		if v == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
