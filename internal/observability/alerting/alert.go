// Package alerting notifies operators when agent exchanges end in outcomes that
// need attention, such as a misconfigured runtime or repeated timeouts.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"BlockPay/internal/agent"
	xerrors "BlockPay/internal/errors"
	"BlockPay/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// ChannelWebhook 兼容 Slack 与钉钉的 incoming webhook。
const ChannelWebhook Channel = "webhook"

// Event 描述一次需要告警的交互。
type Event struct {
	Outcome    string
	Message    string
	Severity   xerrors.Severity
	ExchangeID string
	ThreadID   string
	Duration   time.Duration
	OccurredAt time.Time
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 将事件投递到多个通知器。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher，同一渠道只保留最后一个通知器。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// WebhookNotifier 以 {"text": ...} 的格式 POST 告警内容。
type WebhookNotifier struct {
	http *resty.Client
	url  string
}

// NewWebhookNotifier 创建 webhook 通知器。
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		http: resty.New().SetTimeout(timeout),
		url:  url,
	}
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送告警。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.url == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("exchange_id", event.ExchangeID))
		return nil
	}
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": Format(event)}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("发送告警失败: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("告警接口返回 %d", resp.StatusCode())
	}
	return nil
}

// Format 生成告警正文。
func Format(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] agent exchange %s\n", event.Severity, event.Outcome)
	fmt.Fprintf(&b, "时间: %s\n", event.OccurredAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "会话: %s\n", event.ThreadID)
	fmt.Fprintf(&b, "耗时: %s\n", event.Duration)
	fmt.Fprintf(&b, "描述: %s", event.Message)
	return b.String()
}

// Recorder 按交互结果触发告警，实现 agent.Recorder。
type Recorder struct {
	dispatcher *FanoutDispatcher
	outcomes   map[string]xerrors.Severity
}

// severities 记录各结果对应的告警级别，未列出的结果按 warning 处理。
var severities = map[string]xerrors.Severity{
	"init_failure": xerrors.SeverityCritical,
	"timeout":      xerrors.SeverityWarning,
	"upstream":     xerrors.SeverityWarning,
}

// NewRecorder 创建告警记录器，只对 outcomes 中列出的结果告警。
func NewRecorder(dispatcher *FanoutDispatcher, outcomes ...string) *Recorder {
	set := make(map[string]xerrors.Severity, len(outcomes))
	for _, outcome := range outcomes {
		severity, ok := severities[outcome]
		if !ok {
			severity = xerrors.SeverityWarning
		}
		set[outcome] = severity
	}
	return &Recorder{dispatcher: dispatcher, outcomes: set}
}

// Record 实现 agent.Recorder。
func (r *Recorder) Record(ctx context.Context, exchange agent.Exchange) error {
	severity, ok := r.outcomes[exchange.Outcome]
	if !ok {
		return nil
	}
	return r.dispatcher.Notify(ctx, Event{
		Outcome:    exchange.Outcome,
		Message:    exchange.Error,
		Severity:   severity,
		ExchangeID: exchange.ID,
		ThreadID:   exchange.ThreadID,
		Duration:   time.Duration(exchange.DurationMS) * time.Millisecond,
		OccurredAt: exchange.CreatedAt,
	})
}
