package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"PassengerTraffic/src/config"
	"PassengerTraffic/src/datapush"
	"PassengerTraffic/src/datasource/file"
	"PassengerTraffic/src/processor"
	"PassengerTraffic/src/storage"
	"PassengerTraffic/src/utils"

	"github.com/robfig/cron"
)

// App 一次进程内共享的运行环境
type App struct {
	cfg      *config.Config
	logger   *storage.Logger
	pipeline *processor.Pipeline
	pusher   *datapush.Pusher
	only     []string // 只分析这些数据源，为空表示全部

	runMu sync.Mutex // 同一时间只跑一轮分析
	mu    sync.RWMutex
	last  map[string]processor.Summary
}

// NewApp 根据配置组装流水线
func NewApp(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) (*App, error) {
	if err := dcfg.Validate(); err != nil {
		return nil, err
	}
	pivot, err := dcfg.Pivot()
	if err != nil {
		return nil, err
	}
	loader := processor.Loader{Headers: processor.DefaultHeaderMap().With(dcfg.Aliases())}
	pipeline := processor.NewPipeline(loader, cfg.FocusYears...)
	pipeline.PivotField = pivot

	app := &App{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		last:     make(map[string]processor.Summary),
	}
	if cfg.Push.URL != "" {
		app.pusher = datapush.NewPusher(cfg.Push.URL, time.Duration(cfg.Push.Timeout), cfg.Push.Retries)
	}
	return app, nil
}

// sources 本次需要分析的数据源
func (a *App) sources() []config.Source {
	if len(a.only) == 0 {
		return a.cfg.Sources
	}
	var out []config.Source
	for _, s := range a.cfg.Sources {
		if utils.Contains(a.only, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// resolve 数据源路径为目录时取其中最新的数据文件
func (a *App) resolve(src config.Source) (string, error) {
	path := a.cfg.SourcePath(src)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("数据源 %s: %w", src.Name, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	latest, err := file.FindLatest(path, src.Keyword)
	if err != nil {
		return "", fmt.Errorf("数据源 %s: %w", src.Name, err)
	}
	return latest.FullPath, nil
}

// RunSource 读取、分析并输出一个数据源
func (a *App) RunSource(ctx context.Context, src config.Source) (*processor.Report, error) {
	path, err := a.resolve(src)
	if err != nil {
		return nil, err
	}
	a.logger.Info(fmt.Sprintf("读取数据源 %s: %s", src.Name, path))

	raw, err := file.Read(path, file.Options{Sheet: src.Sheet, HeaderRow: src.HeaderRow, Encoding: src.Encoding})
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
	}

	t1 := time.Now()
	report, err := a.pipeline.Run(src.Name, raw)
	if err != nil {
		return nil, err
	}
	for _, d := range report.Diagnostics {
		a.logger.Warning(d.String())
	}
	a.logger.Info(fmt.Sprintf("%s: %d 条记录，%d 个财年，%d 条诊断，耗时 %v",
		src.Name, report.Dataset.Len(), len(report.YearlySum.Rows), len(report.Diagnostics), time.Since(t1)))

	if err := a.writeOutputs(src.Name, report); err != nil {
		return report, err
	}

	summary := report.CalculateMetrics()
	a.mu.Lock()
	a.last[src.Name] = summary
	a.mu.Unlock()

	if a.pusher != nil {
		if err := a.pusher.Push(ctx, datapush.NewPayload(report)); err != nil {
			return report, fmt.Errorf("推送 %s 失败: %w", src.Name, err)
		}
		a.logger.Info(fmt.Sprintf("%s: 概要已推送", src.Name))
	}
	return report, nil
}

func (a *App) writeOutputs(name string, report *processor.Report) error {
	out := a.cfg.OutputDir
	if err := file.EnsureDir(out); err != nil {
		return err
	}

	xlsxPath := filepath.Join(out, name+".xlsx")
	if err := datapush.WriteWorkbook(report, xlsxPath); err != nil {
		return err
	}

	views := map[string]processor.AggregateView{
		datapush.SheetYearlySum:   report.YearlySum,
		datapush.SheetYearlyMean:  report.YearlyMean,
		datapush.SheetMonthlyMean: report.MonthlyMean,
	}
	for view, v := range views {
		if err := datapush.WriteCSV(v, filepath.Join(out, name+"_"+view+".csv")); err != nil {
			return err
		}
	}

	pdfFile, err := os.Create(filepath.Join(out, name+".pdf"))
	if err != nil {
		return fmt.Errorf("创建PDF文件失败: %w", err)
	}
	if err := datapush.WritePDF(report, pdfFile); err != nil {
		pdfFile.Close()
		return err
	}
	if err := pdfFile.Close(); err != nil {
		return err
	}

	a.logger.Info(fmt.Sprintf("%s: 结果已保存到 %s", name, out))
	return nil
}

// RunAll 依次分析全部数据源，单个失败不影响其他数据源；返回失败数量
func (a *App) RunAll(ctx context.Context) int {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	failed := 0
	for _, src := range a.sources() {
		if ctx.Err() != nil {
			break
		}
		if _, err := a.RunSource(ctx, src); err != nil {
			a.logger.Error(err.Error())
			failed++
		}
	}
	if _, err := a.logger.CheckRotate(a.cfg.LogMaxSize); err != nil {
		a.logger.Error("日志轮转失败: " + err.Error())
	}
	return failed
}

// SourcesFor 被修改的文件对应的数据源
func (a *App) SourcesFor(changed string) []config.Source {
	changed = filepath.Clean(changed)
	var out []config.Source
	for _, s := range a.sources() {
		path := filepath.Clean(a.cfg.SourcePath(s))
		if path == changed {
			out = append(out, s)
			continue
		}
		// 目录型数据源: 文件在该目录下且名称含关键字
		if filepath.Dir(changed) == path && strings.Contains(filepath.Base(changed), s.Keyword) {
			out = append(out, s)
		}
	}
	return out
}

// Summaries 最近一次分析的概要
func (a *App) Summaries() map[string]processor.Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]processor.Summary, len(a.last))
	for k, v := range a.last {
		out[k] = v
	}
	return out
}

// cronSpec schedule 优先，否则用 check_interval
func cronSpec(cfg *config.Config) string {
	if cfg.Schedule != "" {
		return cfg.Schedule
	}
	if cfg.CheckInterval > 0 {
		return fmt.Sprintf("@every %s", time.Duration(cfg.CheckInterval).String())
	}
	return ""
}

func main() {
	jsonFolder := flag.String("config", "./config", "配置目录(config.json, dataconfig.json, .env)")
	once := flag.Bool("once", false, "分析一次后退出")
	watch := flag.Bool("watch", false, "监控数据目录，文件写入后重新分析")
	only := flag.String("source", "", "只分析指定数据源，逗号分隔")
	addr := flag.String("http", "", "日志与概要查看地址，如 :8080")
	verbose := flag.Bool("v", false, "记录 DEBUG 日志")
	flag.Parse()

	cfg, dcfg, err := config.LoadConfig(*jsonFolder, "config.json", "dataconfig.json")
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()
	if *verbose {
		logger.SetLevel(storage.DEBUG)
	}

	app, err := NewApp(cfg, dcfg, logger)
	if err != nil {
		logger.Fatal(err.Error())
		log.Fatal(err)
	}
	if *only != "" {
		app.only = strings.Split(*only, ",")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleSignals(cancel, logger)

	if *addr != "" {
		go startWebUI(ctx, *addr, app)
	}

	failed := app.RunAll(ctx)
	spec := cronSpec(cfg)
	watching := *watch || cfg.Watch
	if *once || (spec == "" && !watching) {
		if failed > 0 {
			logger.Close()
			os.Exit(1)
		}
		return
	}

	if spec != "" {
		// 设置定时任务
		c := cron.New()
		err = c.AddFunc(spec, func() {
			logger.Info(fmt.Sprintf("开始定时分析(%s)...", spec))
			app.RunAll(ctx)
		})
		if err != nil {
			logger.Error("创建定时任务失败: " + err.Error())
			return
		}
		c.Start()
		defer c.Stop()
		logger.Info(fmt.Sprintf("定时分析已启动(%s)", spec))
	}

	if watching && cfg.DataDir != "" {
		monitor, err := file.NewFileMonitor(cfg.DataDir)
		if err != nil {
			logger.Error("创建目录监控失败: " + err.Error())
			return
		}
		defer monitor.Close()
		logger.Info("监控数据目录: " + monitor.Dir())
		go func() {
			err := monitor.Watch(ctx, func(name string) {
				for _, src := range app.SourcesFor(name) {
					app.runMu.Lock()
					if _, err := app.RunSource(ctx, src); err != nil {
						logger.Error(err.Error())
					}
					app.runMu.Unlock()
				}
			})
			if err != nil {
				logger.Error("目录监控异常: " + err.Error())
			}
		}()
	}

	<-ctx.Done()
	logger.Info("服务已停止")
}

// handleSignals SIGINT/SIGTERM 结束运行，SIGHUP 重新打开日志文件
func handleSignals(cancel context.CancelFunc, logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGHUP:
				if err := logger.Reopen(""); err != nil {
					log.Printf("Failed to reopen log: %v", err)
					continue
				}
				logger.Info("Received SIGHUP, log file reopened")
			default:
				logger.Info("Received signal: " + sig.String() + ", shutting down...")
				cancel()
				return
			}
		}
	}()
}

// newWebMux /logs 实时日志，/summary 最近一次分析概要
func newWebMux(app *App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		// 设置响应头
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// 创建日志订阅通道
		logChan := app.logger.Subscribe()
		defer app.logger.Unsubscribe(logChan)

		for {
			select {
			case msg, ok := <-logChan:
				if !ok {
					return
				}
				// 如果写入失败(如客户端断开连接)，则退出循环
				if _, err := fmt.Fprint(w, msg); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(app.Summaries()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

// startWebUI 阻塞直到 ctx 结束
func startWebUI(ctx context.Context, addr string, app *App) {
	srv := &http.Server{Addr: addr, Handler: newWebMux(app)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error("Web服务异常: " + err.Error())
	}
}
