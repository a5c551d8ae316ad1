// loader.go
package processor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cell 原始单元格，Present 为 false 表示缺失
type Cell struct {
	Text    string
	Present bool
}

// RawColumn 原始列: 表头 + 单元格
type RawColumn struct {
	Label string
	Cells []Cell
}

// RawTable 外部读取器提供的原始表格，列名和取值都不可信
type RawTable struct {
	Columns []RawColumn
}

// NewRawTable 由表头和行数据构建原始表格
// 空白单元格视为缺失；行长度不足时补缺失单元格，超出部分忽略
func NewRawTable(header []string, rows [][]string) RawTable {
	cols := make([]RawColumn, len(header))
	for i, h := range header {
		cols[i] = RawColumn{Label: h, Cells: make([]Cell, len(rows))}
	}
	for r, row := range rows {
		for c := range cols {
			if c >= len(row) {
				continue
			}
			text := row[c]
			cols[c].Cells[r] = Cell{Text: text, Present: strings.TrimSpace(text) != ""}
		}
	}
	return RawTable{Columns: cols}
}

// Header 原始表头
func (t RawTable) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Label
	}
	return out
}

// Nrow 行数(以第一列为准)
func (t RawTable) Nrow() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Cells)
}

// Rows 按行返回单元格文本，缺失为空字符串
func (t RawTable) Rows() [][]string {
	n := t.Nrow()
	out := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(t.Columns))
		for c, col := range t.Columns {
			if r < len(col.Cells) && col.Cells[r].Present {
				row[c] = col.Cells[r].Text
			}
		}
		out[r] = row
	}
	return out
}

func (t RawTable) clone() RawTable {
	cols := make([]RawColumn, len(t.Columns))
	for i, c := range t.Columns {
		cells := make([]Cell, len(c.Cells))
		copy(cells, c.Cells)
		cols[i] = RawColumn{Label: c.Label, Cells: cells}
	}
	return RawTable{Columns: cols}
}

var headerCleaner = strings.NewReplacer("\r", "", "\n", "", "\ufeff", "")

// NormalizeHeader 表头标准化: 去掉换行和BOM，去首尾空白，合并连续空白
func NormalizeHeader(label string) string {
	return strings.Join(strings.Fields(headerCleaner.Replace(label)), " ")
}

func headerKey(label string) string {
	return strings.ToUpper(NormalizeHeader(label))
}

// HeaderMap 标准化(大写)表头 -> 规范列名
type HeaderMap map[string]string

// DefaultHeaderMap 覆盖 Air India 月度数据的原始表头以及规范列名本身
func DefaultHeaderMap() HeaderMap {
	h := HeaderMap{
		"MONTH":                         MonthColumn,
		"FY":                            FiscalYearColumn,
		"DEPARTURES":                    Departures.String(),
		"HOURS":                         Hours.String(),
		"KILOMETER(TH)":                 KilometersThousands.String(),
		"KILOMETRE(TH)":                 KilometersThousands.String(),
		"PASSENGERS CARRIED":            PassengersCarried.String(),
		"PASSENGER KMS. PERFORMED(TH)":  PassengerKmThousands.String(),
		"PASSENGER KMS.PERFORMED(TH)":   PassengerKmThousands.String(),
		"AVAILABLE SEAT KILOMETRE(TH)":  AvailableSeatKmThousands.String(),
		"AVAILABLE SEAT KILOMETER(TH)":  AvailableSeatKmThousands.String(),
		"PAX. LOAD FACTOR#(IN %)":       PaxLoadFactorPercent.String(),
		"PAX. LOAD FACTOR(IN %)":        PaxLoadFactorPercent.String(),
		"PAX.LOAD FACTOR (IN %)":        PaxLoadFactorPercent.String(),
	}
	h[strings.ToUpper(MonthColumn)] = MonthColumn
	h[strings.ToUpper(FiscalYearColumn)] = FiscalYearColumn
	for _, f := range MeasuredFields {
		h[strings.ToUpper(f.String())] = f.String()
	}
	return h
}

// With 追加别名，返回新的映射；别名同样经过 NormalizeHeader
func (h HeaderMap) With(aliases map[string]string) HeaderMap {
	out := make(HeaderMap, len(h)+len(aliases))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range aliases {
		out[headerKey(k)] = v
	}
	return out
}

func (h HeaderMap) resolve(label string) (string, bool) {
	canonical, ok := h[headerKey(label)]
	return canonical, ok
}

// Loader 原始表格 -> Dataset
type Loader struct {
	Headers HeaderMap
}

func (l Loader) headers() HeaderMap {
	if l.Headers == nil {
		return DefaultHeaderMap()
	}
	return l.Headers
}

func requiredColumns() []string {
	cols := []string{MonthColumn, FiscalYearColumn}
	for _, f := range MeasuredFields {
		cols = append(cols, f.String())
	}
	return cols
}

// resolveColumns 规范列名 -> 原始列下标
func (l Loader) resolveColumns(raw RawTable) (map[string]int, error) {
	h := l.headers()
	index := make(map[string]int)
	available := make([]string, 0, len(raw.Columns))
	rows := raw.Nrow()

	for i, col := range raw.Columns {
		available = append(available, NormalizeHeader(col.Label))
		if len(col.Cells) != rows {
			return nil, &SchemaMismatchError{
				Column: NormalizeHeader(col.Label),
				Reason: fmt.Sprintf("column has %d cells, expected %d", len(col.Cells), rows),
			}
		}
		canonical, ok := h.resolve(col.Label)
		if !ok {
			continue
		}
		if prev, dup := index[canonical]; dup {
			return nil, &SchemaMismatchError{
				Column: canonical,
				Reason: fmt.Sprintf("matched by both %q and %q",
					NormalizeHeader(raw.Columns[prev].Label), NormalizeHeader(col.Label)),
			}
		}
		index[canonical] = i
	}

	for _, name := range requiredColumns() {
		if _, ok := index[name]; !ok {
			return nil, &SchemaMismatchError{Column: name, Available: available}
		}
	}
	return index, nil
}

var naTokens = map[string]bool{
	"":    true,
	"NA":  true,
	"N/A": true,
	"NAN": true,
}

func isMissing(c Cell) bool {
	return !c.Present || naTokens[strings.ToUpper(strings.TrimSpace(c.Text))]
}

type filledCell struct {
	row   int
	field Field
}

type numericColumn struct {
	col   int
	field Field
}

// fillMissing 把 numeric 中各列的缺失单元格填成 "0"
func fillMissing(raw RawTable, numeric []numericColumn) (RawTable, []filledCell) {
	out := raw.clone()
	var filled []filledCell
	for _, nc := range numeric {
		c, f := nc.col, nc.field
		cells := out.Columns[c].Cells
		for r := range cells {
			if isMissing(cells[r]) {
				cells[r] = Cell{Text: "0", Present: true}
				filled = append(filled, filledCell{row: r, field: f})
			}
		}
	}
	return out, filled
}

// FillMissing 将所有缺失的数值单元格填为0，非数值列保持不变
// 不修改入参；对已填充的表再次调用结果相同
func (l Loader) FillMissing(raw RawTable) (RawTable, error) {
	index, err := l.resolveColumns(raw)
	if err != nil {
		return RawTable{}, err
	}
	out, _ := fillMissing(raw, numericColumns(index))
	return out, nil
}

func numericColumns(index map[string]int) []numericColumn {
	numeric := make([]numericColumn, 0, len(MeasuredFields))
	for _, f := range MeasuredFields {
		numeric = append(numeric, numericColumn{col: index[f.String()], field: f})
	}
	return numeric
}

func parseNumber(text string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}

// Load 校验表头、填充缺失值、转换月份，生成数据集
// 任何致命错误都不返回数据集
func (l Loader) Load(name string, raw RawTable) (Dataset, Diagnostics, error) {
	index, err := l.resolveColumns(raw)
	if err != nil {
		return Dataset{}, nil, err
	}

	filledTable, filled := fillMissing(raw, numericColumns(index))
	filledByRow := make(map[int][]Field)
	for _, fc := range filled {
		filledByRow[fc.row] = append(filledByRow[fc.row], fc.field)
	}

	monthCells := filledTable.Columns[index[MonthColumn]].Cells
	yearCells := filledTable.Columns[index[FiscalYearColumn]].Cells

	n := filledTable.Nrow()
	records := make([]Record, 0, n)
	var diags Diagnostics
	seen := make(map[string]int)

	for row := 0; row < n; row++ {
		mc := monthCells[row]
		if !mc.Present {
			return Dataset{}, nil, &UnrecognizedMonthError{Token: "", Row: row}
		}
		month, err := ParseMonth(mc.Text)
		if err != nil {
			return Dataset{}, nil, &UnrecognizedMonthError{Token: mc.Text, Row: row}
		}

		fy := strings.TrimSpace(yearCells[row].Text)
		if !yearCells[row].Present || fy == "" {
			return Dataset{}, nil, &MissingFiscalYearError{Row: row}
		}

		rec := NewRecord(row, month, fy)
		for _, f := range MeasuredFields {
			col := filledTable.Columns[index[f.String()]]
			v, err := parseNumber(col.Cells[row].Text)
			if err != nil {
				return Dataset{}, nil, &ValueError{
					Column: f.String(),
					Row:    row,
					Text:   col.Cells[row].Text,
					Err:    err,
				}
			}
			rec = rec.With(f, v)
		}

		for _, f := range filledByRow[row] {
			diags = append(diags, diagnosticFor(name, rec, MissingValueFilled, f, "missing value filled with 0"))
		}

		key := fmt.Sprintf("%s|%d", fy, month)
		if first, dup := seen[key]; dup {
			diags = append(diags, diagnosticFor(name, rec, DuplicateRecord, 0,
				fmt.Sprintf("duplicates row %d", first)))
		} else {
			seen[key] = row
		}

		records = append(records, rec)
	}

	return Dataset{Name: name, records: records}, diags, nil
}
