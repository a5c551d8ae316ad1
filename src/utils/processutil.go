package utils

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// MissingColumns 返回 names 中 DataFrame 没有的列，按 names 的顺序
func MissingColumns(df dataframe.DataFrame, names ...string) []string {
	have := df.Names()
	var missing []string
	for _, name := range names {
		if !Contains(have, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// SaveFrameToSheet 把 DataFrame 写入工作簿的 sheetName 页(不存在则新建)
// 第一行为列名；缺失值(NaN)写为空单元格
func SaveFrameToSheet(f *excelize.File, sheetName string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("frame for sheet %s: %w", sheetName, df.Err)
	}
	if idx, _ := f.GetSheetIndex(sheetName); idx < 0 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheetName, err)
		}
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			elem := col.Elem(rowIdx)
			if elem.IsNA() {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, elem.Val()); err != nil {
				return fmt.Errorf("write %s!%s: %w", sheetName, cell, err)
			}
		}
	}
	return nil
}
