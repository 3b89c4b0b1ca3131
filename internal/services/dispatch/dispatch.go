// Package dispatch fans a single payload out to a list of recipients.
//
// Sends run sequentially in input order; the result slice lines up 1:1
// with the recipient slice. A failed send is recorded for that recipient
// only and never aborts the rest of the batch. There are no retries: the
// backend's own send path is the bottleneck, and parallel sends risk
// backend-side rate limits and ordering artifacts.
package dispatch

import (
	"context"
	"os"
	"time"

	"wagate/internal/services/session"
	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Result is the per-recipient outcome of one fan-out.
type Result struct {
	Number string `json:"number"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Readiness gates dispatch on the session state. *session.Service
// satisfies it.
type Readiness interface {
	Ready() bool
}

type Engine struct {
	client transport.Client
	state  Readiness
	log    logx.Logger
}

func New(client transport.Client, state Readiness, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{client: client, state: state, log: log}
}

// SendText sends message to every number in order. Returns
// session.ErrNotReady (and performs zero sends) when the session is not
// connected.
func (e *Engine) SendText(ctx context.Context, numbers []string, message string) ([]Result, error) {
	if !e.state.Ready() {
		return nil, session.ErrNotReady
	}
	return e.fanOut(ctx, numbers, func(ctx context.Context, to string) error {
		return e.client.SendText(ctx, to, message)
	}), nil
}

// SendMedia sends the staged attachment with a shared caption to every
// number in order. The staged file is removed exactly once after the
// whole batch completes, however many sends failed; a failed removal is
// logged, not reported.
func (e *Engine) SendMedia(ctx context.Context, numbers []string, media transport.Media, caption string) ([]Result, error) {
	if !e.state.Ready() {
		return nil, session.ErrNotReady
	}
	defer func() {
		if err := os.Remove(media.Path); err != nil {
			e.log.Warn("staged file cleanup failed",
				logx.String("path", media.Path), logx.Err(err))
		}
	}()
	return e.fanOut(ctx, numbers, func(ctx context.Context, to string) error {
		return e.client.SendMedia(ctx, to, media, caption)
	}), nil
}

// fanOut is the sequential send loop. Send N+1 is not issued until send
// N's outcome is known, which is what keeps result order == input order.
func (e *Engine) fanOut(ctx context.Context, numbers []string, send func(ctx context.Context, to string) error) []Result {
	start := time.Now()
	results := make([]Result, 0, len(numbers))
	failed := 0

	for _, number := range numbers {
		if err := send(ctx, number); err != nil {
			failed++
			results = append(results, Result{Number: number, Status: StatusFailed, Error: err.Error()})
			e.log.Debug("send failed", logx.String("to", number), logx.Err(err))
			continue
		}
		results = append(results, Result{Number: number, Status: StatusSent})
	}

	fields := []logx.Field{
		logx.Int("total", len(numbers)),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(start)),
	}
	if failed > 0 {
		e.log.Warn("dispatch finished with failures", fields...)
	} else {
		e.log.Info("dispatch finished", fields...)
	}
	return results
}
