// Package notify delivers the run report through the configured channels.
//
// Providers are split across dingtalk.go, push.go, telegram.go and email.go;
// this file holds the shared types and the dispatcher.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/drivesign/drivesign/internal/logging"
)

// Message is the channel-agnostic report. HTMLBody is optional; providers
// that render rich text fall back to Body when it is empty.
type Message struct {
	Title    string
	Body     string
	HTMLBody string
}

// HTML returns the rich body, or the plain one when no HTML was rendered.
func (m Message) HTML() string {
	if m.HTMLBody != "" {
		return m.HTMLBody
	}
	return m.Body
}

// Service is the capability every channel implements. Send reports transport
// and auth problems as an error; it must not panic.
type Service interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Outcome records one channel's delivery result.
type Outcome struct {
	Delivered bool
	Reason    string
}

// Retry settings (tuned down in tests).
var notifierMaxRetries = 3
var notifierBaseBackoff = 100 * time.Millisecond

// sleepHook is used in tests to avoid sleeping for real.
var sleepHook = time.Sleep

// Dispatcher fans one message out to every configured service. Channels are
// fully isolated from each other: a failing or even panicking Send only marks
// its own outcome.
type Dispatcher struct {
	services []Service
	mu       sync.Mutex
}

// NewDispatcher returns an empty dispatcher. Dispatching with no services is
// a no-op, not an error.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Add registers a service. Nil services are ignored.
func (d *Dispatcher) Add(s Service) {
	if s != nil {
		d.services = append(d.services, s)
	}
}

// Len reports how many services are registered.
func (d *Dispatcher) Len() int {
	return len(d.services)
}

// Names lists registered services in registration order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.services))
	for _, s := range d.services {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch sends msg to every registered service concurrently and returns the
// per-channel outcomes keyed by service name. It blocks until every channel
// finished its attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(d.services))

	var wg sync.WaitGroup
	for _, s := range d.services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			out := d.sendWithRetries(ctx, svc, msg)
			d.mu.Lock()
			outcomes[svc.Name()] = out
			d.mu.Unlock()
		}(s)
	}
	wg.Wait()

	return outcomes
}

// sendWithRetries attempts one service with backoff between attempts and
// converts errors and panics into a failed outcome.
func (d *Dispatcher) sendWithRetries(ctx context.Context, s Service, msg Message) Outcome {
	var lastErr error
	for attempt := 1; attempt <= notifierMaxRetries; attempt++ {
		err := safeSend(ctx, s, msg)
		if err == nil {
			logging.Get().Debug().Str("channel", s.Name()).Msg("notification sent")
			return Outcome{Delivered: true}
		}
		lastErr = err
		logging.Get().Warn().Err(err).Str("channel", s.Name()).Int("attempt", attempt).Msg("notification attempt failed")
		if attempt < notifierMaxRetries {
			select {
			case <-sleepDone(backoffDuration(attempt)):
			case <-ctx.Done():
				return Outcome{Reason: ctx.Err().Error()}
			}
		}
	}
	return Outcome{Reason: lastErr.Error()}
}

// safeSend converts a panicking provider into a send error so one
// misbehaving channel cannot take down the dispatch.
func safeSend(ctx context.Context, s Service, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected error: %v", rec)
		}
	}()
	return s.Send(ctx, msg)
}

// sleepDone runs sleepHook off the dispatch goroutine so ctx cancellation
// still interrupts the wait.
func sleepDone(d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		sleepHook(d)
		close(ch)
	}()
	return ch
}

// backoffDuration doubles per attempt: 100ms, 200ms, 400ms, ...
func backoffDuration(attempt int) time.Duration {
	return notifierBaseBackoff * time.Duration(1<<uint(attempt-1))
}

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// postJSON is a shared helper used by providers.
func postJSON(ctx context.Context, client *http.Client, url string, data interface{}) error {
	if client == nil {
		client = defaultHTTPClient
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}
