package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LogAdapter routes Temporal SDK logs into zerolog.
type LogAdapter struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*LogAdapter)(nil)
	_ log.WithLogger = (*LogAdapter)(nil)
)

func NewLogAdapter(logger zerolog.Logger) *LogAdapter {
	return &LogAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func withKeyvals(event *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 == len(keyvals) {
			event = event.Str(key, "MISSING_VALUE")
			break
		}
		if err, ok := keyvals[i+1].(error); ok {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, keyvals[i+1])
	}
	return event
}

func (a *LogAdapter) Debug(msg string, keyvals ...interface{}) {
	withKeyvals(a.logger.Debug(), keyvals).Msg(msg)
}

func (a *LogAdapter) Info(msg string, keyvals ...interface{}) {
	withKeyvals(a.logger.Info(), keyvals).Msg(msg)
}

func (a *LogAdapter) Warn(msg string, keyvals ...interface{}) {
	withKeyvals(a.logger.Warn(), keyvals).Msg(msg)
}

func (a *LogAdapter) Error(msg string, keyvals ...interface{}) {
	withKeyvals(a.logger.Error(), keyvals).Msg(msg)
}

// With returns a logger carrying keyvals on every entry.
func (a *LogAdapter) With(keyvals ...interface{}) log.Logger {
	ctx := a.logger.With()
	for i := 0; i+1 < len(keyvals); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(keyvals[i]), keyvals[i+1])
	}
	return &LogAdapter{logger: ctx.Logger()}
}
