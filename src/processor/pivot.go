package processor

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// PivotTable 月份 x 财年 的单字段矩阵
type PivotTable struct {
	Field       Field
	Months      []int    // 行，升序
	FiscalYears []string // 列，升序
	Cells       [][]float64
}

// Value 取单元格，不存在时返回 NaN
func (p PivotTable) Value(month int, fy string) float64 {
	for i, m := range p.Months {
		if m != month {
			continue
		}
		for j, y := range p.FiscalYears {
			if y == fy {
				return p.Cells[i][j]
			}
		}
	}
	return math.NaN()
}

// Pivot 以月份为行、财年为列展开一个字段
// 同一 (月份, 财年) 出现多次时保留最后一次
func Pivot(ds Dataset, f Field) PivotTable {
	years := ds.FiscalYears()
	col := make(map[string]int, len(years))
	for j, y := range years {
		col[y] = j
	}

	var present [13]bool
	for _, r := range ds.records {
		if r.Month >= 1 && r.Month <= 12 {
			present[r.Month] = true
		}
	}
	var months []int
	row := make(map[int]int)
	for m := 1; m <= 12; m++ {
		if present[m] {
			row[m] = len(months)
			months = append(months, m)
		}
	}

	cells := make([][]float64, len(months))
	for i := range cells {
		cells[i] = make([]float64, len(years))
		for j := range cells[i] {
			cells[i][j] = math.NaN()
		}
	}
	for _, r := range ds.records {
		i, ok := row[r.Month]
		if !ok {
			continue
		}
		cells[i][col[r.FiscalYear]] = r.Value(f)
	}

	return PivotTable{Field: f, Months: months, FiscalYears: years, Cells: cells}
}

// OverallMean 整个数据集上某字段的均值，跳过 NaN
func OverallMean(ds Dataset, f Field) (float64, error) {
	if ds.Len() == 0 {
		return math.NaN(), ErrEmptyDataset
	}
	values := make([]float64, 0, ds.Len())
	for _, r := range ds.records {
		values = append(values, r.Value(f))
	}
	data := finite(values)
	if len(data) == 0 {
		return math.NaN(), fmt.Errorf("%s: no finite values", f)
	}
	return stats.Mean(data)
}
