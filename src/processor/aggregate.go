// aggregate.go
package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"PassengerTraffic/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/montanaflynn/stats"
)

// GroupKey 分组键
type GroupKey int

const (
	ByMonth GroupKey = iota
	ByFiscalYear
)

func (k GroupKey) column() (string, bool) {
	switch k {
	case ByMonth:
		return MonthColumn, true
	case ByFiscalYear:
		return FiscalYearColumn, true
	default:
		return "", false
	}
}

func (k GroupKey) String() string {
	if col, ok := k.column(); ok {
		return col
	}
	return fmt.Sprintf("group(%d)", int(k))
}

// Reduction 聚合方式
type Reduction int

const (
	Sum Reduction = iota
	Mean
)

func (r Reduction) String() string {
	switch r {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	default:
		return fmt.Sprintf("reduction(%d)", int(r))
	}
}

// AggregateRow 一个分组的聚合结果
type AggregateRow struct {
	Key        string
	Month      int    // 仅 ByMonth
	FiscalYear string // 仅 ByFiscalYear
	Size       int
	values     [numFields]float64
}

// Value 读取聚合值
func (r AggregateRow) Value(f Field) float64 {
	return r.values[f]
}

// AggregateView 分组聚合视图，创建后只读
// 月份列从不作为聚合对象
type AggregateView struct {
	By        GroupKey
	Reduction Reduction
	Fields    []Field
	Rows      []AggregateRow
}

// Row 按分组标签查找
func (v AggregateView) Row(key string) (AggregateRow, bool) {
	for _, r := range v.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return AggregateRow{}, false
}

// Keys 分组标签，按输出顺序
func (v AggregateView) Keys() []string {
	keys := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		keys[i] = r.Key
	}
	return keys
}

// Frame 转为 gota DataFrame: 分组列, size, 各数值列
func (v AggregateView) Frame() dataframe.DataFrame {
	n := len(v.Rows)
	sizes := make([]int, n)
	for i, r := range v.Rows {
		sizes[i] = r.Size
	}

	var keyCol series.Series
	switch v.By {
	case ByMonth:
		months := make([]int, n)
		for i, r := range v.Rows {
			months[i] = r.Month
		}
		keyCol = series.New(months, series.Int, MonthColumn)
	default:
		keys := make([]string, n)
		for i, r := range v.Rows {
			keys[i] = r.Key
		}
		keyCol = series.New(keys, series.String, v.By.String())
	}

	list := []series.Series{keyCol, series.New(sizes, series.Int, "size")}
	for _, f := range v.Fields {
		vals := make([]float64, n)
		for i, r := range v.Rows {
			vals[i] = r.values[f]
		}
		list = append(list, series.New(vals, series.Float, f.String()))
	}
	return dataframe.New(list...)
}

type group struct {
	key     string
	month   int
	fy      string
	size    int
	columns [numFields][]float64
}

// Grouping 一次分组的结果，可多次 Reduce 而不重新分组
type Grouping struct {
	by     GroupKey
	groups []group
}

// GroupBy 按月份或财年分组
func GroupBy(ds Dataset, by GroupKey) (*Grouping, error) {
	col, ok := by.column()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGrouping, int(by))
	}
	g := &Grouping{by: by}
	if ds.Len() == 0 {
		return g, nil
	}

	return groupFrame(ds.Frame(), by, col)
}

// groupFrame 对 Dataset.Frame 的结果分组；缺少分组列或数值列时返回 SchemaMismatchError
func groupFrame(df dataframe.DataFrame, by GroupKey, col string) (*Grouping, error) {
	if df.Err != nil {
		return nil, fmt.Errorf("build frame: %w", df.Err)
	}
	required := []string{col}
	for _, f := range AllFields() {
		required = append(required, f.String())
	}
	if missing := utils.MissingColumns(df, required...); len(missing) > 0 {
		return nil, &SchemaMismatchError{Column: missing[0], Available: df.Names(), Reason: "frame column missing"}
	}

	g := &Grouping{by: by}
	parts := df.GroupBy(col)
	if parts == nil {
		return nil, fmt.Errorf("group by %s: no groups", col)
	}
	if parts.Err != nil {
		return nil, fmt.Errorf("group by %s: %w", col, parts.Err)
	}

	for _, part := range parts.GetGroups() {
		grp := group{size: part.Nrow()}
		keyElem := part.Col(col).Elem(0)
		switch by {
		case ByMonth:
			m, err := keyElem.Int()
			if err != nil {
				return nil, fmt.Errorf("group key %q: %w", keyElem.String(), err)
			}
			grp.month = m
			grp.key = strconv.Itoa(m)
		case ByFiscalYear:
			grp.fy = keyElem.String()
			grp.key = grp.fy
		}
		for _, f := range AllFields() {
			grp.columns[f] = part.Col(f.String()).Float()
		}
		g.groups = append(g.groups, grp)
	}

	sort.Slice(g.groups, func(i, j int) bool {
		if by == ByMonth {
			return g.groups[i].month < g.groups[j].month
		}
		return g.groups[i].fy < g.groups[j].fy
	})
	return g, nil
}

// Len 分组数量
func (g *Grouping) Len() int { return len(g.groups) }

// Reduce 对每个分组的每个数值列求和或求均值，NaN 不参与计算
func (g *Grouping) Reduce(r Reduction) AggregateView {
	view := AggregateView{
		By:        g.by,
		Reduction: r,
		Fields:    AllFields(),
		Rows:      make([]AggregateRow, 0, len(g.groups)),
	}
	for _, grp := range g.groups {
		row := AggregateRow{
			Key:        grp.key,
			Month:      grp.month,
			FiscalYear: grp.fy,
			Size:       grp.size,
		}
		for _, f := range view.Fields {
			row.values[f] = reduce(r, grp.columns[f])
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

// Aggregate 分组并聚合
func Aggregate(ds Dataset, by GroupKey, r Reduction) (AggregateView, error) {
	g, err := GroupBy(ds, by)
	if err != nil {
		return AggregateView{}, err
	}
	return g.Reduce(r), nil
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func reduce(r Reduction, values []float64) float64 {
	data := finite(values)
	if len(data) == 0 {
		if r == Sum {
			return 0
		}
		return math.NaN()
	}

	var (
		v   float64
		err error
	)
	switch r {
	case Sum:
		v, err = stats.Sum(data)
	case Mean:
		v, err = stats.Mean(data)
	default:
		return math.NaN()
	}
	if err != nil {
		return math.NaN()
	}
	return v
}
