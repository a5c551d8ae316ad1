package processor

import "math"

// ratio 定义一个派生列: value = num * scale / den
type ratio struct {
	target Field
	num    Field
	den    Field
	scale  float64
}

var derivations = []ratio{
	{target: TotalPassengerCapacity, num: PassengersCarried, den: PaxLoadFactorPercent, scale: 100},
	{target: DistancePerPassengerKm, num: PassengerKmThousands, den: PassengersCarried, scale: 1000},
}

// deriveRecord 计算单条记录的派生列，分母为0时置 NaN 并返回对应诊断
func deriveRecord(dataset string, r Record) (Record, Diagnostics) {
	var diags Diagnostics
	for _, d := range derivations {
		den := r.Value(d.den)
		if den == 0 {
			r = r.With(d.target, math.NaN())
			diags = append(diags, diagnosticFor(dataset, r, DivisionGuardWarning, d.target,
				d.den.String()+" is 0"))
			continue
		}
		r = r.With(d.target, r.Value(d.num)*d.scale/den)
	}
	return r, diags
}

// Derive 为每条记录填充 total_passenger_capacity 和 distance_per_passenger_km
// 返回新的数据集，入参不变
func Derive(ds Dataset) (Dataset, Diagnostics) {
	out := make([]Record, len(ds.records))
	var diags Diagnostics
	for i, r := range ds.records {
		rec, d := deriveRecord(ds.Name, r)
		out[i] = rec
		diags = append(diags, d...)
	}
	return Dataset{Name: ds.Name, records: out}, diags
}
