package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autoprint/internal/config"
)

const userAgent = "AutoPrint-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyFileDetected(ctx context.Context, filename string) error
	NotifyPrintCompleted(ctx context.Context, filename, printer, jobID string) error
	NotifyPrintFailed(ctx context.Context, filename string, attempts int, err error) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		sendDetect: cfg.Notifications.Detect,
		sendPrint:  cfg.Notifications.Print,
		sendErrors: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	sendDetect bool
	sendPrint  bool
	sendErrors bool
}

func (n *ntfyService) NotifyFileDetected(ctx context.Context, filename string) error {
	if !n.sendDetect {
		return nil
	}
	filename = strings.TrimSpace(filename)
	data := payload{
		title:   "AutoPrint - File Detected",
		message: fmt.Sprintf("New document ready to print: %s", filename),
		tags:    []string{"autoprint", "detect"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPrintCompleted(ctx context.Context, filename, printer, jobID string) error {
	if !n.sendPrint {
		return nil
	}
	filename = strings.TrimSpace(filename)
	printer = strings.TrimSpace(printer)
	if printer == "" {
		printer = "default printer"
	}
	message := fmt.Sprintf("Printed %s on %s", filename, printer)
	if jobID = strings.TrimSpace(jobID); jobID != "" {
		message = fmt.Sprintf("%s (job %s)", message, jobID)
	}
	data := payload{
		title:   "AutoPrint - Printed",
		message: message,
		tags:    []string{"autoprint", "print", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPrintFailed(ctx context.Context, filename string, attempts int, err error) error {
	if !n.sendErrors {
		return nil
	}
	filename = strings.TrimSpace(filename)
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "AutoPrint - Print Failed",
		message:  fmt.Sprintf("Giving up on %s after %d attempts: %s", filename, attempts, detail),
		tags:     []string{"autoprint", "print", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "AutoPrint - Error",
		message:  builder.String(),
		tags:     []string{"autoprint", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "AutoPrint - Test",
		message:  "Notification system test",
		tags:     []string{"autoprint", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFileDetected(context.Context, string) error                   { return nil }
func (noopService) NotifyPrintCompleted(context.Context, string, string, string) error { return nil }
func (noopService) NotifyPrintFailed(context.Context, string, int, error) error        { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
