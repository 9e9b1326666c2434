// Package socketio provides the 'socketio_emit' handler kind: it
// connects to a Socket.IO server, optionally emits an event with a
// payload, and waits for a response event.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

const defaultTimeout = 10 * time.Second

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	value any
	err   error
}

// Run is the handler for the 'socketio_emit' kind.
//
// Params:
//
//	url                  (string, required)  server URL including path
//	namespace            (string, optional)  Socket.IO namespace
//	emit_event           (string, optional)  event to emit after connect
//	emit_data            (object, optional)  payload for the emitted event
//	on_event             (string, required)  event to wait for
//	timeout              (string, optional)  overall deadline, default 10s
//	insecure_skip_verify (bool, optional)    skip TLS verification
func Run(ctx context.Context, inv *task.Invocation) (any, error) {
	rawURL := inv.StringParam("url", "")
	if rawURL == "" {
		return nil, fmt.Errorf("socketio_emit task '%s' requires a 'url' param", inv.TaskID)
	}
	onEvent := inv.StringParam("on_event", "")
	if onEvent == "" {
		return nil, fmt.Errorf("socketio_emit task '%s' requires an 'on_event' param", inv.TaskID)
	}
	namespace := inv.StringParam("namespace", "/")
	emitEvent := inv.StringParam("emit_event", "")
	emitData := inv.MapParam("emit_data")
	timeout := inv.DurationParam("timeout", defaultTimeout)

	logger := ctxlog.FromContext(ctx).With(
		"task_id", inv.TaskID, "url", rawURL, "onEvent", onEvent, "emitEvent", emitEvent)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	var isConnected atomic.Bool

	done := make(chan opResult, 1)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)

	if inv.BoolParam("insecure_skip_verify", false) {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	// --- Event Listeners ---
	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Successfully connected", "namespace", namespace, "sid", io.Id())
		if emitEvent != "" {
			jsonData, _ := json.Marshal(emitData)
			logger.Info("Emitting event", "event", emitEvent, "data", string(jsonData))
			io.Emit(emitEvent, emitData)
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		done <- opResult{err: errs[0].(error)}
	})

	io.On(types.EventName(onEvent), func(data ...any) {
		var responseData any
		if len(data) > 0 {
			responseData = data[0]
		}
		done <- opResult{value: responseData}
	})

	// --- Execution Block ---
	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return nil, fmt.Errorf("timed out after connecting while waiting for event '%s'", onEvent)
		}
		return nil, fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return map[string]any{"response_data": res.value}, nil
	}
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("socketio_emit", Run)
}
