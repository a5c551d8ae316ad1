package processor

import "fmt"

// WarningKind 诊断类型
type WarningKind int

const (
	// DivisionGuardWarning 派生比值的分母为0，结果置为 NaN
	DivisionGuardWarning WarningKind = iota
	// MissingValueFilled 缺失的数值被填为0
	MissingValueFilled
	// DuplicateRecord 同一数据集中 (month, fiscal_year) 重复出现
	DuplicateRecord
)

func (k WarningKind) String() string {
	switch k {
	case DivisionGuardWarning:
		return "DivisionGuardWarning"
	case MissingValueFilled:
		return "MissingValueFilled"
	case DuplicateRecord:
		return "DuplicateRecord"
	default:
		return "UnknownWarning"
	}
}

// Diagnostic 一条非致命告警，Field 对 DuplicateRecord 无意义
type Diagnostic struct {
	Dataset    string
	Row        int
	Month      int
	FiscalYear string
	Kind       WarningKind
	Field      Field
	Detail     string
}

func (d Diagnostic) String() string {
	where := fmt.Sprintf("%s row %d", d.Dataset, d.Row)
	if d.FiscalYear != "" {
		where = fmt.Sprintf("%s (%s month %d)", where, d.FiscalYear, d.Month)
	}
	if d.Kind == DuplicateRecord {
		return fmt.Sprintf("%s: %s %s", where, d.Kind, d.Detail)
	}
	if d.Detail == "" {
		return fmt.Sprintf("%s: %s on %s", where, d.Kind, d.Field)
	}
	return fmt.Sprintf("%s: %s on %s: %s", where, d.Kind, d.Field, d.Detail)
}

// Diagnostics 只追加的诊断列表
type Diagnostics []Diagnostic

// Count 统计某类诊断数量
func (ds Diagnostics) Count(kind WarningKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Of 取出某类诊断
func (ds Diagnostics) Of(kind WarningKind) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func diagnosticFor(dataset string, r Record, kind WarningKind, f Field, detail string) Diagnostic {
	return Diagnostic{
		Dataset:    dataset,
		Row:        r.Row,
		Month:      r.Month,
		FiscalYear: r.FiscalYear,
		Kind:       kind,
		Field:      f,
		Detail:     detail,
	}
}
