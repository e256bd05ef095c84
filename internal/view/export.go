package view

import (
	"bytes"
	"fmt"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/presenter"

	"github.com/xuri/excelize/v2"
)

// RosterExportHeader 患者合规导出表头
var RosterExportHeader = []string{
	"Patient ID",
	"Patient Name",
	"Compliance %",
	"Status",
	"Needs Attention",
	"Total Sessions",
	"Avg Daily Hours",
	"Last Session",
	"Device Connected",
	"Trend",
}

const rosterSheet = "Patients"

// ExportRoster 生成患者合规 Excel
func ExportRoster(rows []domain.PatientComplianceRow) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(rosterSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

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
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 合规等级底色
	fills := map[presenter.Class]string{
		presenter.ClassGood:      "#D1FAE5",
		presenter.ClassWarning:   "#FEF3C7",
		presenter.ClassAttention: "#FEE2E2",
	}
	classStyles := make(map[presenter.Class]int, len(fills))
	for class, color := range fills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create status style: %w", err)
		}
		classStyles[class] = id
	}

	for col, header := range RosterExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(rosterSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(rosterSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	widths := []float64{38, 24, 14, 12, 16, 15, 16, 20, 17, 12}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(rosterSheet, col, col, w); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range rows {
		row := i + 2 // 第 1 行是表头
		class := presenter.ComplianceClass(r.CompliancePercentage)
		values := []any{
			r.PatientID,
			r.PatientName,
			r.CompliancePercentage,
			string(class),
			yesNo(presenter.NeedsAttention(r.CompliancePercentage)),
			r.TotalSessions,
			r.AverageDailyHours,
			timestampValue(r.LastSession),
			yesNo(r.DeviceConnected),
			presenter.TrendLabel(r.UsageTrend),
		}
		for col, val := range values {
			if val == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(rosterSheet, cell, val); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
		statusCell, _ := excelize.CoordinatesToCellName(4, row)
		if err := f.SetCellStyle(rosterSheet, statusCell, statusCell, classStyles[class]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set status style: %w", err)
		}
	}

	if err := f.SetPanes(rosterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func timestampValue(ts *domain.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.DateTime)
}
