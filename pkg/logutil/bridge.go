package logutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// goKitBridge lets dskit components, which log through go-kit, write to the
// process slog logger instead of their own writer.
type goKitBridge struct {
	logger *slog.Logger
}

var _ log.Logger = (*goKitBridge)(nil)

func NewGoKitLogger(logger *slog.Logger) log.Logger {
	return &goKitBridge{logger: logger}
}

func (b *goKitBridge) Log(keyvals ...any) error {
	lvl := LevelInfo
	msg := ""
	attrs := make([]any, 0, len(keyvals))

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var val any = log.ErrMissingValue
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		switch {
		case keyvals[i] == level.Key():
			lvl = goKitLevel(val)
		case key == "msg" && msg == "":
			msg = fmt.Sprint(val)
		case key == "ts" || key == "caller":
			// slog adds its own
		default:
			attrs = append(attrs, slog.Any(key, val))
		}
	}
	b.logger.Log(context.Background(), lvl, msg, attrs...)
	return nil
}

func goKitLevel(v any) slog.Level {
	lv, ok := v.(level.Value)
	if !ok {
		return LevelInfo
	}
	switch lv {
	case level.DebugValue():
		return LevelDebug
	case level.WarnValue():
		return LevelWarning
	case level.ErrorValue():
		return LevelError
	default:
		return LevelInfo
	}
}
