package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PassengerTraffic/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var header = []string{
	"Month", "FY", "DEPARTURES\n", "HOURS\n", "KILOMETER\n(TH)", "PASSENGERS CARRIED\n",
	"PASSENGER KMS. PERFORMED\n(TH)", "AVAILABLE SEAT KILOMETRE\n(TH)", " PAX. LOAD FACTOR#\n(IN %)",
}

func sampleReport(t *testing.T) *processor.Report {
	t.Helper()
	raw := processor.NewRawTable(header, [][]string{
		{"APR", "FY21", "0", "0", "0", "0", "0", "0", "0"},
		{"MAY", "FY21", "5", "8", "3", "1000", "500", "1000", "50"},
		{"APR", "FY22", "6", "9", "4", "1200", "", "1500", "60"},
	})
	report, err := processor.NewPipeline(processor.Loader{}, "FY21").Run("domestic", raw)
	require.NoError(t, err)
	return report
}

func TestWriteWorkbook(t *testing.T) {
	report := sampleReport(t)
	path := filepath.Join(t.TempDir(), "domestic.xlsx")
	require.NoError(t, WriteWorkbook(report, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Equal(t, []string{
		SheetYearlySum, SheetYearlyMean, SheetMonthlyMean, "pivot_departures", "fy_FY21", SheetRecords, SheetDiagnostics,
	}, sheets)

	rows, err := f.GetRows(SheetYearlySum)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"fiscal_year", "size", "departures"}, rows[0][:3])
	assert.Equal(t, []string{"FY21", "2", "5"}, rows[1][:3])

	fy, err := f.GetRows(FiscalYearSheet("FY21"))
	require.NoError(t, err)
	assert.Len(t, fy, 3)

	diags, err := f.GetRows(SheetDiagnostics)
	require.NoError(t, err)
	require.Len(t, diags, 1+len(report.Diagnostics))
	var kinds []string
	for _, row := range diags[1:] {
		kinds = append(kinds, row[4])
	}
	assert.Equal(t, []string{"MissingValueFilled", "DivisionGuardWarning", "DivisionGuardWarning"}, kinds)
}

func TestWriteWorkbook_FiscalYearNamedLikeFixedSheet(t *testing.T) {
	raw := processor.NewRawTable(header, [][]string{
		{"APR", "records", "5", "8", "3", "1000", "500", "1000", "50"},
		{"MAY", "Yearly_Sum", "6", "9", "4", "1200", "600", "1500", "60"},
	})
	report, err := processor.NewPipeline(processor.Loader{}, "records", "Yearly_Sum").Run("domestic", raw)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "domestic.xlsx")
	require.NoError(t, WriteWorkbook(report, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Contains(t, f.GetSheetList(), "fy_records")
	records, err := f.GetRows(SheetRecords)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, processor.MonthColumn, records[0][0])

	sum, err := f.GetRows(SheetYearlySum)
	require.NoError(t, err)
	assert.Len(t, sum, 3)
}

func TestWriteWorkbook_SheetNameCollision(t *testing.T) {
	raw := processor.NewRawTable(header, [][]string{
		{"APR", "FY21", "5", "8", "3", "1000", "500", "1000", "50"},
		{"MAY", "fy21", "6", "9", "4", "1200", "600", "1500", "60"},
	})
	report, err := processor.NewPipeline(processor.Loader{}, "FY21", "fy21").Run("domestic", raw)
	require.NoError(t, err)

	err = WriteWorkbook(report, filepath.Join(t.TempDir(), "domestic.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "工作表重名")
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "2014_15", sheetName("2014/15"))
	assert.Len(t, []rune(sheetName(strings.Repeat("x", 40))), 31)
	assert.Equal(t, "fy_2014_15", FiscalYearSheet("2014/15"))
}

func TestEncodeCSV(t *testing.T) {
	report := sampleReport(t)

	data, err := EncodeCSV(report.MonthlyMean)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "key,label,size,departures,hours"))
	assert.True(t, strings.HasPrefix(lines[1], "4,APR,2,"))
	assert.True(t, strings.HasPrefix(lines[2], "5,MAY,1,"))

	// 4月两条记录中只有 FY22 有 distance
	records := ViewRecords(report.MonthlyMean)
	require.NotNil(t, records[0].TotalPassengerCapacity)
	assert.InDelta(t, 2000.0, *records[0].TotalPassengerCapacity, 1e-9)
	require.NotNil(t, records[0].DistancePerPassengerKm)
	assert.Equal(t, 0.0, *records[0].DistancePerPassengerKm)
}

func TestEncodeCSV_NaNIsEmpty(t *testing.T) {
	raw := processor.NewRawTable(header, [][]string{{"APR", "FY21", "0", "0", "0", "0", "0", "0", "0"}})
	report, err := processor.NewPipeline(processor.Loader{}).Run("domestic", raw)
	require.NoError(t, err)

	data, err := EncodeCSV(report.YearlyMean)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ",,"))
}

func TestEncodeCSV_EmptyView(t *testing.T) {
	data, err := EncodeCSV(processor.AggregateView{By: processor.ByFiscalYear})
	require.NoError(t, err)
	assert.Equal(t, "key,label,size,departures,hours,kilometers_thousands,passengers_carried,"+
		"passenger_km_thousands,available_seat_km_thousands,pax_load_factor_percent,"+
		"total_passenger_capacity,distance_per_passenger_km\n", string(data))
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domestic_yearly_sum.csv")
	require.NoError(t, WriteCSV(sampleReport(t).YearlySum, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FY21,FY21,2,")
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(sampleReport(t), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestNewPayload(t *testing.T) {
	report := sampleReport(t)
	p := NewPayload(report)
	assert.Equal(t, "domestic", p.Summary.Dataset)
	assert.Len(t, p.Warnings, len(report.Diagnostics))
	assert.Zero(t, p.Dropped)

	for i := 0; i < MAX_WARNINGS+5; i++ {
		report.Diagnostics = append(report.Diagnostics, processor.Diagnostic{Dataset: "domestic"})
	}
	p = NewPayload(report)
	assert.Len(t, p.Warnings, MAX_WARNINGS)
	assert.Equal(t, len(report.Diagnostics)-MAX_WARNINGS, p.Dropped)
}

func TestPusher_RetriesUntilAccepted(t *testing.T) {
	var calls int32
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, time.Second, 5)
	p.Interval = time.Millisecond
	require.NoError(t, p.Push(context.Background(), NewPayload(sampleReport(t))))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "domestic", got.Summary.Dataset)
	assert.Equal(t, 2, got.Summary.DivisionGuards)
}

func TestPusher_ErrCode(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"bad token"}`))
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, time.Second, 2)
	p.Interval = time.Millisecond
	err := p.Push(context.Background(), Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad token")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPusher_EmptyBodyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, NewPusher(srv.URL, 0, 0).Push(context.Background(), Payload{}))
}

func TestPusher_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPusher(srv.URL, time.Second, 5)
	p.Interval = time.Hour
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Push(ctx, Payload{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}
