// Package httpcheck provides the 'http_check' handler kind: it performs
// a single HTTP request and fails the task when the response status does
// not match the expectation.
package httpcheck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

const defaultTimeout = 10 * time.Second

// Run is the handler for the 'http_check' kind.
//
// Params:
//
//	url            (string, required)  target URL
//	method         (string, optional)  HTTP method, default GET
//	expect_status  (number, optional)  expected status code, default 200
//	timeout        (string, optional)  request timeout, default 10s
func Run(ctx context.Context, inv *task.Invocation) (any, error) {
	url := inv.StringParam("url", "")
	if url == "" {
		return nil, fmt.Errorf("http_check task '%s' requires a 'url' param", inv.TaskID)
	}
	method := strings.ToUpper(inv.StringParam("method", "GET"))
	expectStatus := inv.IntParam("expect_status", 200)
	timeout := inv.DurationParam("timeout", defaultTimeout)

	logger := ctxlog.FromContext(ctx).With("task_id", inv.TaskID, "url", url, "method", method)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	client := resty.New().SetTimeout(timeout)
	defer client.Close()

	started := time.Now()
	res, err := client.R().SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	elapsed := time.Since(started)

	if res.StatusCode() != expectStatus {
		return nil, fmt.Errorf("unexpected status %d (want %d)", res.StatusCode(), expectStatus)
	}

	logger.Info("HTTP check passed", "status", res.StatusCode(), "elapsed", elapsed)
	return map[string]any{
		"status_code": res.StatusCode(),
		"elapsed_ms":  elapsed.Milliseconds(),
	}, nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("http_check", Run)
}
