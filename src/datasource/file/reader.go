// reader.go
package file

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"PassengerTraffic/src/processor"

	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options 读取选项
type Options struct {
	Sheet     string // xlsx 工作表名，为空时取第一个
	HeaderRow int    // 表头所在行(从0开始)，之后的行都是数据
	Encoding  string // csv 字符集，如 "windows-1252"、"gbk"，为空按 utf-8
}

// FileInfo 文件信息结构体
type FileInfo struct {
	Name     string
	FullPath string
	ModTime  time.Time
}

// Supported 是否为可读取的数据文件
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Read 按扩展名选择读取方式
func Read(path string, opt Options) (processor.RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path, opt.Encoding, opt.HeaderRow)
	case ".xlsx":
		return ReadXLSX(path, opt.Sheet, opt.HeaderRow)
	default:
		return processor.RawTable{}, fmt.Errorf("unsupported file type: %s", path)
	}
}

// EnsureDir 确保目录存在
func EnsureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}

// FindLatest 查找目录中最新的、文件名包含 keyword 的数据文件
func FindLatest(dir, keyword string) (*FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var latest *FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		if keyword != "" && !strings.Contains(entry.Name(), keyword) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == nil || info.ModTime().After(latest.ModTime) {
			latest = &FileInfo{
				Name:     info.Name(),
				FullPath: filepath.Join(dir, info.Name()),
				ModTime:  info.ModTime(),
			}
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("no matching data files found in %s", dir)
	}
	return latest, nil
}

// decoder 按字符集名称构造解码器，同时去掉 BOM
func decoder(name string) (transform.Transformer, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return unicode.BOMOverride(enc.NewDecoder()), nil
}

// ReadCSV 读取 csv 文件
func ReadCSV(filePath, encoding string, headerRow int) (processor.RawTable, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return processor.RawTable{}, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	dec, err := decoder(encoding)
	if err != nil {
		return processor.RawTable{}, err
	}
	return parseCSV(transform.NewReader(f, dec), headerRow)
}

func parseCSV(r io.Reader, headerRow int) (processor.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return processor.RawTable{}, fmt.Errorf("parse csv: %w", err)
	}
	return toRawTable(records, headerRow)
}

// ReadXLSX 读取 xlsx 的指定工作表
func ReadXLSX(filePath, sheetName string, headerRow int) (processor.RawTable, error) {
	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return processor.RawTable{}, fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表
	if len(xlFile.Sheets) == 0 {
		return processor.RawTable{}, fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return processor.RawTable{}, fmt.Errorf("sheet %q not found in %s", sheetName, filePath)
		}
		sheet = s
	}

	// 3. 转换为行数据
	return toRawTable(sheetRecords(sheet), headerRow)
}

func sheetRecords(sheet *xlsx.Sheet) [][]string {
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			records = append(records, nil)
			continue
		}
		values := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			if cell != nil {
				values[i] = cell.Value
			}
		}
		records = append(records, values)
	}
	return records
}

// toRawTable 以 headerRow 行为表头，去掉末尾的空表头列和之后的全空行
func toRawTable(records [][]string, headerRow int) (processor.RawTable, error) {
	if headerRow < 0 || headerRow >= len(records) {
		return processor.RawTable{}, fmt.Errorf("header row %d out of range (%d rows)", headerRow, len(records))
	}

	header := records[headerRow]
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return processor.RawTable{}, fmt.Errorf("header row %d is empty", headerRow)
	}

	rows := records[headerRow+1:]
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return processor.NewRawTable(header, rows), nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
