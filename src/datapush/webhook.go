package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"PassengerTraffic/src/processor"
)

// 常量定义
const (
	RETRY_TIMES     = 5
	RETRY_INTERVAL  = 2 * time.Second
	DEFAULT_TIMEOUT = 10 * time.Second
	MAX_WARNINGS    = 50 // 每次推送携带的诊断条数上限
)

// PushResponse 接收端的应答，errcode 非0视为失败；空应答视为成功
type PushResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Payload 推送内容
type Payload struct {
	Summary  processor.Summary `json:"summary"`
	Warnings []string          `json:"warnings,omitempty"`
	Dropped  int               `json:"dropped_warnings,omitempty"`
}

// NewPayload 由分析报告生成推送内容
func NewPayload(report *processor.Report) Payload {
	p := Payload{Summary: report.CalculateMetrics()}
	for i, d := range report.Diagnostics {
		if i >= MAX_WARNINGS {
			p.Dropped = len(report.Diagnostics) - MAX_WARNINGS
			break
		}
		p.Warnings = append(p.Warnings, d.String())
	}
	return p
}

// Pusher 把概要以 JSON POST 到报表端
type Pusher struct {
	URL      string
	Retries  int
	Interval time.Duration
	Client   *http.Client
}

// NewPusher timeout/retries 为0时使用默认值
func NewPusher(url string, timeout time.Duration, retries int) *Pusher {
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	if retries <= 0 {
		retries = RETRY_TIMES
	}
	return &Pusher{
		URL:      url,
		Retries:  retries,
		Interval: RETRY_INTERVAL,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Push 发送，失败时按固定间隔重试
func (p *Pusher) Push(ctx context.Context, payload Payload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}
	return retry(ctx, func() error {
		return p.post(ctx, payloadBytes)
	}, p.Retries, p.Interval)
}

func (p *Pusher) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("推送失败: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	var result PushResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("推送失败: %s", result.ErrMsg)
	}
	return nil
}

// 重试函数
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("重试中止: %w", ctx.Err())
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
