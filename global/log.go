package global

import (
	"log/slog"
	"os"
	"time"

	console "github.com/phsym/console-slog"
)

// LogTitle tags which subsystem a log line came from, consumed by
// LogInfo/LogWarning/LogError call sites across fork/, cdr/ and
// webserver/.
type LogTitle string

const (
	LTSystem        LogTitle = "System"
	LTConfiguration LogTitle = "Configuration"
	LTFork          LogTitle = "Fork"
	LTRegistrar     LogTitle = "Registrar"
	LTTransport     LogTitle = "Transport"
	LTWebserver     LogTitle = "Webserver"
	LTCDR           LogTitle = "CDR"
)

// Def is the process-wide structured logger. Backed by console-slog so
// subsystem and level are queryable fields, not just prefix text.
var Def = slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
	Level:      slog.LevelDebug,
	TimeFormat: time.RFC3339,
}))

func LogInfo(lt LogTitle, msg string) {
	Def.Info(msg, slog.String("subsystem", string(lt)))
}

func LogWarning(lt LogTitle, msg string) {
	Def.Warn(msg, slog.String("subsystem", string(lt)))
}

func LogError(lt LogTitle, msg string) {
	Def.Error(msg, slog.String("subsystem", string(lt)))
}
