// record.go
package processor

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Field 数值列
type Field int

const (
	Departures Field = iota
	Hours
	KilometersThousands
	PassengersCarried
	PassengerKmThousands
	AvailableSeatKmThousands
	PaxLoadFactorPercent
	TotalPassengerCapacity
	DistancePerPassengerKm

	numFields
)

// 分组列，不参与聚合
const (
	MonthColumn      = "month"
	FiscalYearColumn = "fiscal_year"
)

var fieldNames = [numFields]string{
	"departures",
	"hours",
	"kilometers_thousands",
	"passengers_carried",
	"passenger_km_thousands",
	"available_seat_km_thousands",
	"pax_load_factor_percent",
	"total_passenger_capacity",
	"distance_per_passenger_km",
}

// MeasuredFields 原始数据中直接给出的列
var MeasuredFields = []Field{
	Departures,
	Hours,
	KilometersThousands,
	PassengersCarried,
	PassengerKmThousands,
	AvailableSeatKmThousands,
	PaxLoadFactorPercent,
}

// DerivedFields 由 Derive 计算得到的列
var DerivedFields = []Field{
	TotalPassengerCapacity,
	DistancePerPassengerKm,
}

// AllFields 全部数值列，按输出顺序排列
func AllFields() []Field {
	fields := make([]Field, 0, numFields)
	fields = append(fields, MeasuredFields...)
	return append(fields, DerivedFields...)
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Derived 是否为派生列
func (f Field) Derived() bool {
	return f == TotalPassengerCapacity || f == DistancePerPassengerKm
}

// ParseField 按列名查找字段
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// Record 一条月度记录
type Record struct {
	Row        int // 源数据中的行号(从0开始)
	Month      int
	FiscalYear string
	values     [numFields]float64
}

// NewRecord 创建记录，派生列初始化为 NaN
func NewRecord(row, month int, fiscalYear string) Record {
	r := Record{Row: row, Month: month, FiscalYear: fiscalYear}
	for _, f := range DerivedFields {
		r.values[f] = math.NaN()
	}
	return r
}

// Value 读取字段值
func (r Record) Value(f Field) float64 {
	return r.values[f]
}

// With 返回修改了一个字段的副本
func (r Record) With(f Field, v float64) Record {
	r.values[f] = v
	return r
}

// Dataset 有序、只读的记录集合
type Dataset struct {
	Name    string
	records []Record
}

// NewDataset 复制 records 构建数据集
func NewDataset(name string, records []Record) Dataset {
	cp := make([]Record, len(records))
	copy(cp, records)
	return Dataset{Name: name, records: cp}
}

func (d Dataset) Len() int { return len(d.records) }

func (d Dataset) Record(i int) Record { return d.records[i] }

// Records 返回记录副本
func (d Dataset) Records() []Record {
	cp := make([]Record, len(d.records))
	copy(cp, d.records)
	return cp
}

// FiscalYears 按标签升序返回出现过的财年
func (d Dataset) FiscalYears() []string {
	seen := make(map[string]bool)
	var years []string
	for _, r := range d.records {
		if !seen[r.FiscalYear] {
			seen[r.FiscalYear] = true
			years = append(years, r.FiscalYear)
		}
	}
	sort.Strings(years)
	return years
}

// Frame 转换为 gota DataFrame，列顺序: month, fiscal_year, 各数值列
func (d Dataset) Frame() dataframe.DataFrame {
	n := len(d.records)
	months := make([]int, n)
	years := make([]string, n)
	cols := make([][]float64, numFields)
	for f := range cols {
		cols[f] = make([]float64, n)
	}
	for i, r := range d.records {
		months[i] = r.Month
		years[i] = r.FiscalYear
		for f := range cols {
			cols[f][i] = r.values[f]
		}
	}

	list := []series.Series{
		series.New(months, series.Int, MonthColumn),
		series.New(years, series.String, FiscalYearColumn),
	}
	for _, f := range AllFields() {
		list = append(list, series.New(cols[f], series.Float, f.String()))
	}
	return dataframe.New(list...)
}

// FilterFiscalYear 取出某一财年的记录，按月份升序
func (d Dataset) FilterFiscalYear(fy string) Dataset {
	var out []Record
	for _, r := range d.records {
		if r.FiscalYear == fy {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return Dataset{Name: d.Name, records: out}
}
