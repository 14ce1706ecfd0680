// Package httpclient builds retrying HTTP clients for outbound API calls.
package httpclient

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Component    string
	Timeout      time.Duration
	MaxAttempts  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// New returns a client that retries connection errors, 429 and 5xx responses with
// exponential backoff (honouring Retry-After) and hands the final response back to
// the caller instead of wrapping it in an error.
func New(opts Options) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	if opts.MaxAttempts > 0 {
		rc.RetryMax = opts.MaxAttempts - 1
	}
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = Logger{Component: opts.Component}
	return rc
}

// Logger adapts the global zerolog logger to retryablehttp.LeveledLogger.
type Logger struct {
	Component string
}

var _ retryablehttp.LeveledLogger = Logger{}

func (l Logger) Error(msg string, kv ...interface{}) { l.emit(log.Error(), msg, kv) }
func (l Logger) Warn(msg string, kv ...interface{})  { l.emit(log.Warn(), msg, kv) }
func (l Logger) Info(msg string, kv ...interface{})  { l.emit(log.Debug(), msg, kv) }
func (l Logger) Debug(msg string, kv ...interface{}) { l.emit(log.Trace(), msg, kv) }

func (l Logger) emit(ev *zerolog.Event, msg string, kv []interface{}) {
	if l.Component != "" {
		ev = ev.Str("component", l.Component)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		ev = ev.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	ev.Msg(msg)
}
