package datapush

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"os"

	"PassengerTraffic/src/processor"

	"github.com/jszwec/csvutil"
)

// ViewRecord 聚合视图的一行，缺失值(NaN)输出为空
type ViewRecord struct {
	Key                      string   `csv:"key"`
	Label                    string   `csv:"label"`
	Size                     int      `csv:"size"`
	Departures               *float64 `csv:"departures"`
	Hours                    *float64 `csv:"hours"`
	KilometersThousands      *float64 `csv:"kilometers_thousands"`
	PassengersCarried        *float64 `csv:"passengers_carried"`
	PassengerKmThousands     *float64 `csv:"passenger_km_thousands"`
	AvailableSeatKmThousands *float64 `csv:"available_seat_km_thousands"`
	PaxLoadFactorPercent     *float64 `csv:"pax_load_factor_percent"`
	TotalPassengerCapacity   *float64 `csv:"total_passenger_capacity"`
	DistancePerPassengerKm   *float64 `csv:"distance_per_passenger_km"`
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ViewRecords 聚合视图转为 csv 行；按月分组时 label 为月份缩写
func ViewRecords(view processor.AggregateView) []ViewRecord {
	out := make([]ViewRecord, 0, len(view.Rows))
	for _, row := range view.Rows {
		label := row.Key
		if view.By == processor.ByMonth {
			if tok, ok := processor.MonthToken(row.Month); ok {
				label = tok
			}
		}
		out = append(out, ViewRecord{
			Key:                      row.Key,
			Label:                    label,
			Size:                     row.Size,
			Departures:               optional(row.Value(processor.Departures)),
			Hours:                    optional(row.Value(processor.Hours)),
			KilometersThousands:      optional(row.Value(processor.KilometersThousands)),
			PassengersCarried:        optional(row.Value(processor.PassengersCarried)),
			PassengerKmThousands:     optional(row.Value(processor.PassengerKmThousands)),
			AvailableSeatKmThousands: optional(row.Value(processor.AvailableSeatKmThousands)),
			PaxLoadFactorPercent:     optional(row.Value(processor.PaxLoadFactorPercent)),
			TotalPassengerCapacity:   optional(row.Value(processor.TotalPassengerCapacity)),
			DistancePerPassengerKm:   optional(row.Value(processor.DistancePerPassengerKm)),
		})
	}
	return out
}

// EncodeCSV 聚合视图编码为带表头的 csv
func EncodeCSV(view processor.AggregateView) ([]byte, error) {
	records := ViewRecords(view)
	if len(records) == 0 {
		// 空视图只输出表头
		header, err := csvutil.Header(ViewRecord{}, "csv")
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}
	data, err := csvutil.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s view: %w", view.By, view.Reduction, err)
	}
	return data, nil
}

// WriteCSV 写入 csv 文件
func WriteCSV(view processor.AggregateView, filePath string) error {
	data, err := EncodeCSV(view)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("保存CSV文件失败: %w", err)
	}
	return nil
}
