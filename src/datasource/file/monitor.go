// monitor.go
package file

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监控数据目录，数据文件被写入后回调
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	lastMod  map[string]time.Time
	mu       sync.Mutex
}

func NewFileMonitor(dir string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
		lastMod:  make(map[string]time.Time),
	}, nil
}

// Dir 被监控的目录
func (m *FileMonitor) Dir() string { return m.watchDir }

// Close 停止监控，Watch 随之返回
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}

// changed 文件修改时间是否比上次处理时更新
func (m *FileMonitor) changed(name string) bool {
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !info.ModTime().After(m.lastMod[name]) {
		return false
	}
	m.lastMod[name] = info.ModTime()
	return true
}

// Watch 阻塞直到 ctx 结束或监控关闭
// handler 在 Watch 所在的 goroutine 中依次调用，修改时间未前进的事件被忽略
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !Supported(event.Name) {
				continue
			}
			if m.changed(event.Name) {
				handler(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
