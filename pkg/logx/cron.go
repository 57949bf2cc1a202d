package logx

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type cronLogger struct{ l Logger }

// CronLogger adapts l to robfig/cron's Logger. Cron's info chatter is
// demoted to debug.
func CronLogger(l Logger) cron.Logger { return cronLogger{l: l} }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(kvFields(keysAndValues), Err(err))...)
}

func kvFields(kv []interface{}) []Field {
	out := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
