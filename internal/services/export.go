package services

import (
	"fmt"
	"io"
	"time"

	"github.com/breathe-dev/breathe/internal/models"
	"github.com/xuri/excelize/v2"
)

const historySheet = "History"

var historyExportHeader = []string{"ID", "Sensor", "State", "Unit", "Recorded At (UTC)"}

// WriteHistoryWorkbook writes the readings of one sensor as an xlsx workbook.
func WriteHistoryWorkbook(w io.Writer, sensor models.Sensor, rows []models.SensorHistory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := f.SetSheetRow(historySheet, "A1", &historyExportHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	lastHeader, err := excelize.CoordinatesToCellName(len(historyExportHeader), 1)

	if err != nil {
		return err
	}

	if err := f.SetCellStyle(historySheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	if err := f.SetColWidth(historySheet, "A", "A", 10); err != nil {
		return err
	}

	if err := f.SetColWidth(historySheet, "B", "D", 20); err != nil {
		return err
	}

	if err := f.SetColWidth(historySheet, "E", "E", 26); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)

		if err != nil {
			return err
		}

		values := []any{
			row.ID,
			sensor.FriendlyName,
			row.State,
			sensor.UnitOfMeasurement,
			row.RecordedAt.UTC().Format(time.RFC3339),
		}

		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	return nil
}
