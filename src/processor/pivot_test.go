package processor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPivot(t *testing.T) {
	t.Parallel()

	ds := NewDataset("domestic", []Record{
		record(0, 4, "FY14", map[Field]float64{Departures: 10}),
		record(1, 4, "FY15", map[Field]float64{Departures: 12}),
		record(2, 1, "FY14", map[Field]float64{Departures: 9}),
	})
	p := Pivot(ds, Departures)

	assert.Equal(t, Departures, p.Field)
	assert.Equal(t, []int{1, 4}, p.Months)
	assert.Equal(t, []string{"FY14", "FY15"}, p.FiscalYears)
	assert.Equal(t, 10.0, p.Value(4, "FY14"))
	assert.Equal(t, 12.0, p.Value(4, "FY15"))
	assert.Equal(t, 9.0, p.Value(1, "FY14"))
	assert.True(t, math.IsNaN(p.Value(1, "FY15")))
	assert.True(t, math.IsNaN(p.Value(7, "FY14")))
}

func TestPivot_LastDuplicateWins(t *testing.T) {
	t.Parallel()

	ds := NewDataset("domestic", []Record{
		record(0, 6, "FY16", map[Field]float64{Hours: 1}),
		record(1, 6, "FY16", map[Field]float64{Hours: 2}),
	})
	assert.Equal(t, 2.0, Pivot(ds, Hours).Value(6, "FY16"))
}

func TestOverallMean(t *testing.T) {
	t.Parallel()

	ds, _ := Derive(NewDataset("domestic", []Record{
		record(0, 4, "FY21", map[Field]float64{PassengersCarried: 1000, PassengerKmThousands: 500}),
		record(1, 5, "FY21", map[Field]float64{PassengersCarried: 1000, PassengerKmThousands: 1500}),
		record(2, 6, "FY21", nil),
	}))
	mean, err := OverallMean(ds, DistancePerPassengerKm)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, mean, 1e-9)
}

func TestOverallMean_Errors(t *testing.T) {
	t.Parallel()

	_, err := OverallMean(NewDataset("empty", nil), Departures)
	assert.True(t, errors.Is(err, ErrEmptyDataset))

	ds, _ := Derive(NewDataset("domestic", []Record{record(0, 4, "FY21", nil)}))
	v, err := OverallMean(ds, DistancePerPassengerKm)
	assert.Error(t, err)
	assert.True(t, math.IsNaN(v))
}
