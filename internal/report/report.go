// Package report forwards failures that operators must see out of band,
// such as derived-graph writes that did not land.
package report

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
)

// Reporter records an error together with structured context.
type Reporter interface {
	Error(msg string, err error, fields map[string]any)
	Close()
}

// LogReporter writes reports to a standard logger.
type LogReporter struct {
	std *log.Logger
}

// NewLogReporter returns a reporter that only logs.
func NewLogReporter(std *log.Logger) *LogReporter {
	if std == nil {
		std = log.Default()
	}
	return &LogReporter{std: std}
}

func (l *LogReporter) Error(msg string, err error, fields map[string]any) {
	l.std.Printf("report: %s: %v%s", msg, err, formatFields(fields))
}

func (l *LogReporter) Close() {}

// RollbarConfig carries the rollbar client settings.
type RollbarConfig struct {
	Token       string
	Environment string
	ServerHost  string
}

// RollbarReporter sends reports to Rollbar and mirrors them to the logger.
type RollbarReporter struct {
	std *log.Logger
}

var _ Reporter = (*RollbarReporter)(nil)

// NewRollbarReporter configures the global rollbar client.
func NewRollbarReporter(std *log.Logger, conf RollbarConfig) *RollbarReporter {
	if std == nil {
		std = log.Default()
	}
	rollbar.SetToken(conf.Token)
	rollbar.SetEnvironment(conf.Environment)
	if conf.ServerHost != "" {
		rollbar.SetServerHost(conf.ServerHost)
	}
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarReporter{std: std}
}

func (r *RollbarReporter) Error(msg string, err error, fields map[string]any) {
	args := []interface{}{msg}
	if err != nil {
		args = append(args, err)
	}
	if len(fields) > 0 {
		extras := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			extras[k] = v
		}
		args = append(args, extras)
	}
	rollbar.Error(args...)
	r.std.Printf("report: %s: %v%s", msg, err, formatFields(fields))
}

// Close blocks until queued items are delivered.
func (r *RollbarReporter) Close() {
	rollbar.Wait()
}

// New picks Rollbar when a token is configured.
func New(std *log.Logger, conf RollbarConfig) Reporter {
	if conf.Token == "" {
		return NewLogReporter(std)
	}
	return NewRollbarReporter(std, conf)
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
