package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"PassengerTraffic/src/processor"

	"github.com/joho/godotenv"
)

// 环境变量覆盖项
const (
	EnvDataDir   = "TRAFFIC_DATA_DIR"
	EnvOutputDir = "TRAFFIC_OUTPUT_DIR"
	EnvPushURL   = "TRAFFIC_PUSH_URL"
)

// Source 一个待分析的数据集
type Source struct {
	Name      string `json:"name"`       // 数据集名称，如 domestic / international
	Path      string `json:"path"`       // 文件或目录，相对路径基于 data_dir
	Keyword   string `json:"keyword"`    // path 为目录时，按文件名关键字选最新文件
	Sheet     string `json:"sheet"`      // xlsx 工作表
	HeaderRow int    `json:"header_row"` // 表头所在行(从0开始)
	Encoding  string `json:"encoding"`   // csv 字符集
}

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir       string   `json:"data_dir"`   // 数据文件目录
	OutputDir     string   `json:"output_dir"` // 结果输出目录
	LogName       string   `json:"log_name"`
	LogMaxSize    string   `json:"log_max_size"`
	Sources       []Source `json:"sources"`
	Schedule      string   `json:"schedule"`       // cron 表达式，为空时用 check_interval
	CheckInterval Duration `json:"check_interval"` // 定时分析间隔，为0表示不定时
	Watch         bool     `json:"watch"`          // 数据文件写入后重新分析
	FocusYears    []string `json:"focus_years"`    // 需要逐月拆分的财年
	Push          struct {
		URL     string   `json:"url"`
		Timeout Duration `json:"timeout"`
		Retries int      `json:"retries"`
	} `json:"push"`
}

// DataConfig 数据相关配置
type DataConfig struct {
	HeaderAliases map[string]string `json:"header_aliases"` // 原始表头 -> 规范列名
	PivotField    string            `json:"pivot_field"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	loadErr            error
)

// LoadConfig 只加载一次，之后的调用返回相同结果
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		instance, dataConfigInstance, loadErr = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, loadErr
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := applyEnv(cfg, filepath.Join(jsonFolder, ".env")); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := dcfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	if dcfg.HeaderAliases == nil {
		dcfg.HeaderAliases = make(map[string]string)
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	// 使用固定格式字符串
	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyEnv 读取 .env(不存在则跳过)，环境变量优先于配置文件
func applyEnv(cfg *Config, envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("读取环境变量文件失败: %w", err)
		}
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv(EnvPushURL); v != "" {
		cfg.Push.URL = v
	}
	return nil
}

// Validate 检查必填项并补默认值
func (c *Config) Validate() error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, fmt.Errorf("sources 不能为空"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		switch {
		case strings.TrimSpace(s.Name) == "":
			errs = append(errs, fmt.Errorf("sources[%d]: name 不能为空", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("sources[%d]: name %q 重复", i, s.Name))
		}
		seen[s.Name] = true
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: path 不能为空", i))
		}
		if s.HeaderRow < 0 {
			errs = append(errs, fmt.Errorf("sources[%d]: header_row 不能为负数", i))
		}
	}
	if c.CheckInterval < 0 {
		errs = append(errs, fmt.Errorf("check_interval 不能为负数"))
	}
	if len(errs) > 0 {
		return combineErrors(errs)
	}

	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.LogName == "" {
		c.LogName = "traffic.log"
	}
	return nil
}

// SourcePath 数据源的完整路径
func (c *Config) SourcePath(s Source) string {
	if filepath.IsAbs(s.Path) || c.DataDir == "" {
		return s.Path
	}
	return filepath.Join(c.DataDir, s.Path)
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Pivot 透视表字段，未配置时为 departures
func (dc *DataConfig) Pivot() (processor.Field, error) {
	if dc.PivotField == "" {
		return processor.Departures, nil
	}
	f, err := processor.ParseField(dc.PivotField)
	if err != nil {
		return 0, fmt.Errorf("pivot_field: %w", err)
	}
	return f, nil
}

// Aliases 返回别名副本
func (dc *DataConfig) Aliases() map[string]string {
	out := make(map[string]string, len(dc.HeaderAliases))
	for k, v := range dc.HeaderAliases {
		out[k] = v
	}
	return out
}

// Validate 别名只能指向 month、fiscal_year 或原始数值列；派生列由计算得到，不能作为别名目标
func (dc *DataConfig) Validate() error {
	var errs []error
	headers := make([]string, 0, len(dc.HeaderAliases))
	for h := range dc.HeaderAliases {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, h := range headers {
		target := dc.HeaderAliases[h]
		if target == processor.MonthColumn || target == processor.FiscalYearColumn {
			continue
		}
		f, err := processor.ParseField(target)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("header_aliases[%q]: %w", h, err))
		case f.Derived():
			errs = append(errs, fmt.Errorf("header_aliases[%q]: %q 是派生列", h, target))
		}
	}
	if _, err := dc.Pivot(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return combineErrors(errs)
	}
	return nil
}
