package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"solarshare/internal/ledger/application"
	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/metering"
)

// BuildCommunityReportPDF renders a PDF snapshot of the community ledger.
func BuildCommunityReportPDF(status application.Status, registry []ledger.Participant) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Community Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Phase: %s", status.Phase))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Participants: %d of %d", status.Registered, status.Capacity))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Completed rounds: %d", status.Round))
	pdf.Ln(5)
	if !status.ActivatedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Active since: %s", status.ActivatedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Identity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Role", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Total (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Shared (kWh)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, p := range registry {
		pdf.CellFormat(35, 6, p.Identity, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, p.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(p.Role), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, metering.FormatAmount(p.CumulativeTotal), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, metering.FormatAmount(p.CumulativeSharedUsage), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildCommunityReportXLSX renders an XLSX snapshot of the community ledger.
func BuildCommunityReportXLSX(status application.Status, registry []ledger.Participant) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	participantsSheet := "participants"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(participantsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Energy Community Report")
	_ = f.SetCellValue(summarySheet, "A3", "Phase")
	_ = f.SetCellValue(summarySheet, "B3", string(status.Phase))
	_ = f.SetCellValue(summarySheet, "A4", "Participants")
	_ = f.SetCellValue(summarySheet, "B4", status.Registered)
	_ = f.SetCellValue(summarySheet, "A5", "Capacity")
	_ = f.SetCellValue(summarySheet, "B5", status.Capacity)
	_ = f.SetCellValue(summarySheet, "A6", "Completed rounds")
	_ = f.SetCellValue(summarySheet, "B6", status.Round)
	if !status.ActivatedAt.IsZero() {
		_ = f.SetCellValue(summarySheet, "A7", "Active since")
		_ = f.SetCellValue(summarySheet, "B7", status.ActivatedAt.Format(time.RFC3339))
	}

	_ = f.SetCellValue(participantsSheet, "A1", "Identity")
	_ = f.SetCellValue(participantsSheet, "B1", "Name")
	_ = f.SetCellValue(participantsSheet, "C1", "Role")
	_ = f.SetCellValue(participantsSheet, "D1", "Total (kWh)")
	_ = f.SetCellValue(participantsSheet, "E1", "Shared (kWh)")
	for i, p := range registry {
		row := i + 2
		_ = f.SetCellValue(participantsSheet, fmt.Sprintf("A%d", row), p.Identity)
		_ = f.SetCellValue(participantsSheet, fmt.Sprintf("B%d", row), p.Name)
		_ = f.SetCellValue(participantsSheet, fmt.Sprintf("C%d", row), string(p.Role))
		_ = f.SetCellValue(participantsSheet, fmt.Sprintf("D%d", row), metering.FormatAmount(p.CumulativeTotal))
		_ = f.SetCellValue(participantsSheet, fmt.Sprintf("E%d", row), metering.FormatAmount(p.CumulativeSharedUsage))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
