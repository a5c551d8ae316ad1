package datapush

import (
	"fmt"
	"sort"
	"strings"

	"PassengerTraffic/src/processor"
	"PassengerTraffic/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// 工作簿中的固定页
const (
	SheetYearlySum   = "yearly_sum"
	SheetYearlyMean  = "yearly_mean"
	SheetMonthlyMean = "monthly_mean"
	SheetRecords     = "records"
	SheetDiagnostics = "diagnostics"
)

var sheetNameCleaner = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", "\\", "_",
)

// sheetName 处理 excel 不允许的字符和31字符的长度限制
func sheetName(name string) string {
	name = sheetNameCleaner.Replace(name)
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

// FiscalYearSheet 指定财年逐月合计所在的页名
func FiscalYearSheet(fy string) string {
	return sheetName("fy_" + fy)
}

// PivotFrame 透视表转 DataFrame: month 列 + 每个财年一列
func PivotFrame(p processor.PivotTable) dataframe.DataFrame {
	list := []series.Series{series.New(p.Months, series.Int, processor.MonthColumn)}
	for j, fy := range p.FiscalYears {
		vals := make([]float64, len(p.Months))
		for i := range p.Months {
			vals[i] = p.Cells[i][j]
		}
		list = append(list, series.New(vals, series.Float, fy))
	}
	return dataframe.New(list...)
}

type namedFrame struct {
	name string
	df   dataframe.DataFrame
}

// WriteWorkbook 将一个数据集的分析结果写入 xlsx，每个视图一页
func WriteWorkbook(report *processor.Report, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []namedFrame{
		{SheetYearlySum, report.YearlySum.Frame()},
		{SheetYearlyMean, report.YearlyMean.Frame()},
		{SheetMonthlyMean, report.MonthlyMean.Frame()},
		{sheetName("pivot_" + report.Pivot.Field.String()), PivotFrame(report.Pivot)},
	}

	years := make([]string, 0, len(report.FiscalYears))
	for fy := range report.FiscalYears {
		years = append(years, fy)
	}
	sort.Strings(years)
	for _, fy := range years {
		sheets = append(sheets, namedFrame{FiscalYearSheet(fy), report.FiscalYears[fy].Frame()})
	}

	if report.Dataset.Len() > 0 {
		sheets = append(sheets, namedFrame{SheetRecords, report.Dataset.Frame()})
	}

	// excel 的页名不区分大小写，重名会覆盖已写入的页
	used := map[string]bool{strings.ToLower(SheetDiagnostics): true}
	for _, s := range sheets {
		key := strings.ToLower(s.name)
		if used[key] {
			return fmt.Errorf("工作表重名: %s", s.name)
		}
		used[key] = true
	}

	for _, s := range sheets {
		if err := utils.SaveFrameToSheet(f, s.name, s.df); err != nil {
			return err
		}
	}
	if err := writeDiagnostics(f, report.Diagnostics); err != nil {
		return err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("删除默认工作表失败: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetYearlySum); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	// 保存文件
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func writeDiagnostics(f *excelize.File, diags processor.Diagnostics) error {
	if _, err := f.NewSheet(SheetDiagnostics); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetDiagnostics, err)
	}
	rows := [][]interface{}{{"dataset", "row", "month", "fiscal_year", "kind", "field", "detail"}}
	for _, d := range diags {
		field := ""
		if d.Kind != processor.DuplicateRecord {
			field = d.Field.String()
		}
		rows = append(rows, []interface{}{d.Dataset, d.Row, d.Month, d.FiscalYear, d.Kind.String(), field, d.Detail})
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetDiagnostics, cell, &row); err != nil {
			return fmt.Errorf("write diagnostics row %d: %w", r, err)
		}
	}
	return nil
}
