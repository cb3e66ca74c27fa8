// Package reporter forwards sync failures to an external collection
// endpoint. Delivery is best effort: one POST per failure, bounded by a
// timeout, never retried, and any delivery error is dropped.
package reporter

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/reqsercom/snippetsync/logger"
)

// Kind classifies a failure by the scope it was isolated at. Keys skipped for
// a non-string value are only logged, so they have no kind.
type Kind string

const (
	ConfigRead      Kind = "ConfigReadError"
	DirectoryAccess Kind = "DirectoryAccessError"
	FileParse       Kind = "FileParseError"
	StoreWrite      Kind = "StoreWriteError"
)

// Envelope is the JSON body posted for one failure.
type Envelope struct {
	Type      string `json:"type"`
	Function  string `json:"function"`
	Message   string `json:"message"`
	Trace     string `json:"trace"`
	Timestamp string `json:"timestamp"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Host      string `json:"host"`
	ShopID    string `json:"shopId"`
}

// Reporter receives failures from the sync run.
type Reporter interface {
	Report(ctx context.Context, kind Kind, err error)
}

// Nop discards every report.
type Nop struct{}

func (Nop) Report(context.Context, Kind, error) {}

// Options configures an HTTP reporter.
type Options struct {
	Endpoint   string
	ShopID     string
	Timeout    time.Duration
	MaxReports int
}

// HTTP posts failure envelopes to a collection endpoint.
type HTTP struct {
	client   *resty.Client
	endpoint string
	shopID   string
	host     string
	log      *logger.Logger

	mu   sync.Mutex
	sent int
	max  int

	now func() time.Time
}

// New returns an HTTP reporter, or Nop when no endpoint is configured.
func New(opts Options, log *logger.Logger) Reporter {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return Nop{}
	}
	return NewHTTP(opts, log)
}

func NewHTTP(opts Options, log *logger.Logger) *HTTP {
	host, _ := os.Hostname()
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &HTTP{
		client:   client,
		endpoint: opts.Endpoint,
		shopID:   opts.ShopID,
		host:     host,
		log:      log.With("component", "reporter"),
		max:      opts.MaxReports,
		now:      time.Now,
	}
}

// Report sends one envelope. Once MaxReports envelopes have been sent, later
// failures are only counted in the log.
func (h *HTTP) Report(ctx context.Context, kind Kind, err error) {
	if err == nil {
		return
	}

	h.mu.Lock()
	if h.max > 0 && h.sent >= h.max {
		h.mu.Unlock()
		h.log.Debug("report limit reached, dropping report", "type", kind, "error", err)
		return
	}
	h.sent++
	h.mu.Unlock()

	env := h.envelope(kind, err, 2)
	resp, postErr := h.client.R().
		SetContext(ctx).
		SetBody(env).
		Post(h.endpoint)
	if postErr != nil {
		h.log.Debug("failure report not delivered", "error", postErr)
		return
	}
	if resp.IsError() {
		h.log.Debug("failure report rejected", "status", resp.Status())
	}
}

// ResetLimit starts a new per-run report budget.
func (h *HTTP) ResetLimit() {
	h.mu.Lock()
	h.sent = 0
	h.mu.Unlock()
}

// envelope builds the report for err, attributing it to the caller skip
// frames above envelope.
func (h *HTTP) envelope(kind Kind, err error, skip int) Envelope {
	env := Envelope{
		Type:      string(kind),
		Message:   err.Error(),
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Host:      h.host,
		ShopID:    h.shopID,
	}
	pc, file, line, ok := runtime.Caller(skip)
	if ok {
		env.File = file
		env.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			env.Function = fn.Name()
		}
	}
	env.Trace = trace(skip + 1)
	return env
}

// trace renders the calling stack, innermost first.
func trace(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}
