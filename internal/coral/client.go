package coral

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"roost/internal/apperr"
	"roost/internal/logs"
)

// Client — исходящий HTTP-клиент контроллера шкафа ("coral").
// Два класса вызовов:
//   - strict (DeviceLeave): ошибка или не-2xx прерывает операцию вызывающего;
//   - best-effort (остальные): предупреждение в лог, локальное состояние
//     не откатывается.
type Client struct {
	http          *resty.Client
	baseURL       string
	strictTimeout time.Duration
	notifyTimeout time.Duration
}

type Options struct {
	BaseURL string
	// Таймауты по классам вызовов; нули заменяются дефолтами.
	StrictTimeout time.Duration // device_leave (дефолт 60s)
	NotifyTimeout time.Duration // остальные уведомления (дефолт 3s)
}

func New(opts Options) *Client {
	if opts.StrictTimeout <= 0 {
		opts.StrictTimeout = 60 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 3 * time.Second
	}
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Content-Type", "application/json")
	return &Client{
		http:          c,
		baseURL:       opts.BaseURL,
		strictTimeout: opts.StrictTimeout,
		notifyTimeout: opts.NotifyTimeout,
	}
}

// Enabled — без базового URL клиент работает в «пустом» режиме:
// strict-вызовы тривиально успешны (dev/test окружение без шкафа).
func (c *Client) Enabled() bool { return c.baseURL != "" }

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("coral %s: %s: %s", path, resp.Status(), resp.String())
	}
	return nil
}

// DeviceLeave уведомляет контроллер об освобождении устройства.
// Strict: не-2xx или сетевая ошибка прерывает release у вызывающего.
func (c *Client) DeviceLeave(ctx context.Context, payload map[string]any) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.post(ctx, "/device_leave", c.strictTimeout, payload); err != nil {
		return apperr.Upstream("cabinet controller rejected device_leave", err)
	}
	return nil
}

// DeviceUpdate — best-effort уведомление об изменении конфигурации.
func (c *Client) DeviceUpdate(ctx context.Context, payload map[string]any) {
	c.notify(ctx, "/device_update", payload)
}

// PhoneModuleUpdate — best-effort уведомление об изменении модуля телефона.
func (c *Client) PhoneModuleUpdate(ctx context.Context, payload map[string]any) {
	c.notify(ctx, "/phone_module_update", payload)
}

// UpdatePortSLG — best-effort синхронизация стратегии питания порта.
func (c *Client) UpdatePortSLG(ctx context.Context, payload map[string]any) {
	c.notify(ctx, "/update_port_slg", payload)
}

// DoorInfo — best-effort синхронизация состояния дверей шкафа.
func (c *Client) DoorInfo(ctx context.Context, payload map[string]any) {
	c.notify(ctx, "/door_info", payload)
}

func (c *Client) notify(ctx context.Context, path string, payload any) {
	if !c.Enabled() {
		return
	}
	if err := c.post(ctx, path, c.notifyTimeout, payload); err != nil {
		logs.Logger.Warnf("coral notify %s failed: %v", path, err)
	}
}
