package datapush

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"PassengerTraffic/src/processor"

	"github.com/jung-kurt/gofpdf"
)

// pdfColumns 概要页中按财年合计展示的列
var pdfColumns = []processor.Field{
	processor.Departures,
	processor.Hours,
	processor.PassengersCarried,
	processor.PassengerKmThousands,
	processor.AvailableSeatKmThousands,
	processor.TotalPassengerCapacity,
}

func pdfNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 0, 64)
}

// WritePDF 输出一页横向 A4 概要: 各财年合计 + 诊断统计
func WritePDF(report *processor.Report, w io.Writer) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(report.Dataset.Name+" passenger traffic", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 10, fmt.Sprintf("%s: yearly totals", report.Dataset.Name))
	pdf.Ln(12)

	const keyWidth, sizeWidth, valueWidth, height = 28.0, 16.0, 38.0, 7.0

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(0xDD, 0xE6, 0xF0)
	pdf.CellFormat(keyWidth, height, processor.FiscalYearColumn, "1", 0, "C", true, 0, "")
	pdf.CellFormat(sizeWidth, height, "months", "1", 0, "C", true, 0, "")
	for _, f := range pdfColumns {
		pdf.CellFormat(valueWidth, height, f.String(), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range report.YearlySum.Rows {
		pdf.CellFormat(keyWidth, height, row.Key, "1", 0, "L", false, 0, "")
		pdf.CellFormat(sizeWidth, height, strconv.Itoa(row.Size), "1", 0, "R", false, 0, "")
		for _, f := range pdfColumns {
			pdf.CellFormat(valueWidth, height, pdfNumber(row.Value(f)), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	distance := "n/a"
	if !math.IsNaN(report.MeanDistance) {
		distance = strconv.FormatFloat(report.MeanDistance, 'f', 1, 64) + " km"
	}
	pdf.Cell(0, height, "Mean distance per passenger: "+distance)
	pdf.Ln(-1)
	pdf.Cell(0, height, fmt.Sprintf("Division guards: %d, filled values: %d, duplicate records: %d",
		report.Diagnostics.Count(processor.DivisionGuardWarning),
		report.Diagnostics.Count(processor.MissingValueFilled),
		report.Diagnostics.Count(processor.DuplicateRecord)))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("生成PDF失败: %w", err)
	}
	return nil
}
