package processor

import "strings"

// 源数据使用的月份缩写，按财年顺序(4月开始)
var monthTokens = []string{
	"APR", "MAY", "JUNE", "JULY", "AUG", "SEP",
	"OCT", "NOV", "DEC", "JAN", "FEB", "MAR",
}

var monthByToken = map[string]int{
	"APR":  4,
	"MAY":  5,
	"JUNE": 6,
	"JULY": 7,
	"AUG":  8,
	"SEP":  9,
	"OCT":  10,
	"NOV":  11,
	"DEC":  12,
	"JAN":  1,
	"FEB":  2,
	"MAR":  3,
}

// MonthTokens 返回全部月份缩写(财年顺序)
func MonthTokens() []string {
	out := make([]string, len(monthTokens))
	copy(out, monthTokens)
	return out
}

// ParseMonth 月份缩写转日历月份(1-12)
// 只去掉首尾空白，大小写敏感；其他取值返回 UnrecognizedMonthError
func ParseMonth(token string) (int, error) {
	m, ok := monthByToken[strings.TrimSpace(token)]
	if !ok {
		return 0, &UnrecognizedMonthError{Token: token, Row: -1}
	}
	return m, nil
}

// MonthToken ParseMonth 的逆运算
func MonthToken(month int) (string, bool) {
	if month < 1 || month > 12 {
		return "", false
	}
	return monthTokens[FiscalIndex(month)-1], true
}

// FiscalIndex 月份在财年中的序号: APR=1 ... MAR=12
func FiscalIndex(month int) int {
	return (month+8)%12 + 1
}
