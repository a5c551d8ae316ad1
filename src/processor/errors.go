package processor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownGrouping = errors.New("unknown grouping key")
	ErrEmptyDataset    = errors.New("dataset has no records")
)

// SchemaMismatchError 标准化后仍无法匹配必需列，或表结构不一致
type SchemaMismatchError struct {
	Column    string
	Available []string
	Reason    string
}

func (e *SchemaMismatchError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "required column not found"
	}
	if len(e.Available) == 0 {
		return fmt.Sprintf("schema mismatch: %s: %q", reason, e.Column)
	}
	return fmt.Sprintf("schema mismatch: %s: %q (columns: %s)",
		reason, e.Column, strings.Join(e.Available, ", "))
}

// UnrecognizedMonthError 月份取值不在固定的12个缩写中
type UnrecognizedMonthError struct {
	Token string
	Row   int
}

func (e *UnrecognizedMonthError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("unrecognized month token %q", e.Token)
	}
	return fmt.Sprintf("row %d: unrecognized month token %q", e.Row, e.Token)
}

// MissingFiscalYearError 财年为空
type MissingFiscalYearError struct {
	Row int
}

func (e *MissingFiscalYearError) Error() string {
	return fmt.Sprintf("row %d: fiscal year is missing", e.Row)
}

// ValueError 数值单元格无法解析
type ValueError struct {
	Column string
	Row    int
	Text   string
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("row %d, column %q: invalid number %q: %v", e.Row, e.Column, e.Text, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }
