// data.go
package processor

import (
	"fmt"
	"math"
	"time"
)

// Pipeline 单次分析流程: Loader -> Derive -> Aggregate
// 每一步都返回新的结构，不共享可变状态
type Pipeline struct {
	Loader     Loader
	PivotField Field
	FocusYears []string // 需要按月拆分的财年
}

// NewPipeline 默认以 departures 生成透视表
func NewPipeline(loader Loader, focusYears ...string) *Pipeline {
	return &Pipeline{
		Loader:     loader,
		PivotField: Departures,
		FocusYears: focusYears,
	}
}

// Report 一个数据集的全部分析结果
type Report struct {
	Dataset     Dataset
	Diagnostics Diagnostics
	MonthlyMean AggregateView            // 各月跨年均值
	YearlySum   AggregateView            // 各财年合计
	YearlyMean  AggregateView            // 各财年月均
	FiscalYears map[string]AggregateView // 指定财年的逐月合计
	Pivot       PivotTable
	// MeanDistance 全部记录的平均每位旅客飞行距离(km)，无有效值时为 NaN
	MeanDistance float64
	GeneratedAt  time.Time
}

// Run 执行完整流程；加载失败时不返回报告
func (p *Pipeline) Run(name string, raw RawTable) (*Report, error) {
	loaded, diags, err := p.Loader.Load(name, raw)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	derived, derivedDiags := Derive(loaded)
	diags = append(diags, derivedDiags...)

	byMonth, err := GroupBy(derived, ByMonth)
	if err != nil {
		return nil, fmt.Errorf("group %s by month: %w", name, err)
	}
	byYear, err := GroupBy(derived, ByFiscalYear)
	if err != nil {
		return nil, fmt.Errorf("group %s by fiscal year: %w", name, err)
	}

	report := &Report{
		Dataset:     derived,
		Diagnostics: diags,
		MonthlyMean: byMonth.Reduce(Mean),
		YearlySum:   byYear.Reduce(Sum),
		YearlyMean:  byYear.Reduce(Mean),
		FiscalYears: make(map[string]AggregateView, len(p.FocusYears)),
		Pivot:       Pivot(derived, p.PivotField),
		GeneratedAt: time.Now(),
	}

	for _, fy := range p.FocusYears {
		part := derived.FilterFiscalYear(fy)
		if part.Len() == 0 {
			continue
		}
		view, err := Aggregate(part, ByMonth, Sum)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s %s: %w", name, fy, err)
		}
		report.FiscalYears[fy] = view
	}

	report.MeanDistance, err = OverallMean(derived, DistancePerPassengerKm)
	if err != nil {
		report.MeanDistance = math.NaN()
	}
	return report, nil
}

// Summary 推送给报表端的概要
type Summary struct {
	Dataset          string             `json:"dataset"`
	Records          int                `json:"records"`
	FiscalYears      []string           `json:"fiscal_years"`
	DivisionGuards   int                `json:"division_guards"`
	FilledValues     int                `json:"filled_values"`
	DuplicateRecords int                `json:"duplicate_records"`
	MeanDistanceKm   *float64           `json:"mean_distance_km"`
	CapacityByYear   map[string]float64 `json:"capacity_by_year"`
	PassengersByYear map[string]float64 `json:"passengers_by_year"`
	LastUpdated      time.Time          `json:"last_updated"`
}

// CalculateMetrics 汇总业务指标
func (r *Report) CalculateMetrics() Summary {
	s := Summary{
		Dataset:          r.Dataset.Name,
		Records:          r.Dataset.Len(),
		FiscalYears:      r.Dataset.FiscalYears(),
		DivisionGuards:   r.Diagnostics.Count(DivisionGuardWarning),
		FilledValues:     r.Diagnostics.Count(MissingValueFilled),
		DuplicateRecords: r.Diagnostics.Count(DuplicateRecord),
		CapacityByYear:   make(map[string]float64, len(r.YearlySum.Rows)),
		PassengersByYear: make(map[string]float64, len(r.YearlySum.Rows)),
		LastUpdated:      r.GeneratedAt,
	}
	if !math.IsNaN(r.MeanDistance) {
		v := r.MeanDistance
		s.MeanDistanceKm = &v
	}
	for _, row := range r.YearlySum.Rows {
		s.CapacityByYear[row.Key] = row.Value(TotalPassengerCapacity)
		s.PassengersByYear[row.Key] = row.Value(PassengersCarried)
	}
	return s
}
