package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PassengerTraffic/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const domesticCSV = "Month,FY,\"DEPARTURES\n\",\"HOURS\n\",\"KILOMETER\n(TH)\",\"PASSENGERS CARRIED\n\"," +
	"\"PASSENGER KMS. PERFORMED\n(TH)\",\"AVAILABLE SEAT KILOMETRE\n(TH)\",\" PAX. LOAD FACTOR#\n(IN %)\"\n" +
	"APR,FY15,5469,11150,4832,\"553,530\",785624,1105217,71.1\n" +
	"MAY,FY15,5608,11559,5011,595580,,1149021,74.1\n" +
	",,,,,,,,\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeFile(t, "domestic.csv", []byte(domesticCSV))

	raw, err := ReadCSV(path, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Nrow())
	require.Len(t, raw.Columns, 9)
	assert.Equal(t, "DEPARTURES\n", raw.Columns[2].Label)
	assert.False(t, raw.Columns[6].Cells[1].Present)

	ds, diags, err := processor.Loader{}.Load("domestic", raw)
	require.NoError(t, err)
	assert.Equal(t, 553530.0, ds.Record(0).Value(processor.PassengersCarried))
	assert.Equal(t, 1, diags.Count(processor.MissingValueFilled))
}

func TestReadCSV_BOMAndCharset(t *testing.T) {
	data := append([]byte("\xef\xbb\xbf"), []byte(domesticCSV)...)
	path := writeFile(t, "bom.csv", data)

	raw, err := ReadCSV(path, "utf-8", 0)
	require.NoError(t, err)
	assert.Equal(t, "Month", raw.Columns[0].Label)

	latin := writeFile(t, "latin.csv", []byte("Caf\xe9,FY\n1,2\n"))
	raw, err = ReadCSV(latin, "windows-1252", 0)
	require.NoError(t, err)
	assert.Equal(t, "Café", raw.Columns[0].Label)

	_, err = ReadCSV(latin, "no-such-charset", 0)
	assert.Error(t, err)
}

func TestReadCSV_HeaderRow(t *testing.T) {
	path := writeFile(t, "titled.csv", []byte("Air India monthly traffic,,\nMonth,FY,DEPARTURES\nJAN,FY16,10\n"))

	raw, err := ReadCSV(path, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Month", "FY", "DEPARTURES"}, raw.Header())
	assert.Equal(t, [][]string{{"JAN", "FY16", "10"}}, raw.Rows())

	_, err = ReadCSV(path, "", 5)
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.xlsx")
	f := excelize.NewFile()
	_, err := f.NewSheet("domestic")
	require.NoError(t, err)
	rows := [][]interface{}{
		{"Month", "FY", "DEPARTURES\n", "HOURS\n", "KILOMETER\n(TH)", "PASSENGERS CARRIED\n",
			"PASSENGER KMS. PERFORMED\n(TH)", "AVAILABLE SEAT KILOMETRE\n(TH)", " PAX. LOAD FACTOR#\n(IN %)"},
		{"APR", "FY15", 5469, 11150, 4832, 553530, 785624, 1105217, 71.1},
		{"MAY", "FY15", 5608, 11559, 5011, 595580, 801234, 1149021, 74.1},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("domestic", cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	raw, err := ReadXLSX(path, "domestic", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Nrow())
	assert.Equal(t, "FY15", raw.Columns[1].Cells[0].Text)

	ds, _, err := processor.Loader{}.Load("domestic", raw)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Record(1).Month)
	assert.Equal(t, 5608.0, ds.Record(1).Value(processor.Departures))

	_, err = ReadXLSX(path, "missing", 0)
	assert.Error(t, err)
}

func TestRead_Dispatch(t *testing.T) {
	path := writeFile(t, "domestic.CSV", []byte(domesticCSV))
	raw, err := Read(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Nrow())

	_, err = Read(writeFile(t, "notes.txt", []byte("x")), Options{})
	assert.Error(t, err)
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "traffic_2014.csv")
	latest := filepath.Join(dir, "traffic_2015.xlsx")
	other := filepath.Join(dir, "readme.txt")
	for _, p := range []string{old, latest, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(latest, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(other, now, now))

	info, err := FindLatest(dir, "traffic")
	require.NoError(t, err)
	assert.Equal(t, latest, info.FullPath)

	_, err = FindLatest(dir, "international")
	assert.Error(t, err)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "reports")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))

	path := writeFile(t, "plain", []byte("x"))
	assert.Error(t, EnsureDir(path))
}

func TestFileMonitor_Watch(t *testing.T) {
	dir := t.TempDir()
	monitor, err := NewFileMonitor(dir)
	require.NoError(t, err)
	defer monitor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- monitor.Watch(ctx, func(name string) { seen <- name })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	target := filepath.Join(dir, "domestic.csv")
	require.NoError(t, os.WriteFile(target, []byte(domesticCSV), 0644))

	select {
	case name := <-seen:
		assert.Equal(t, target, name)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for csv file")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
