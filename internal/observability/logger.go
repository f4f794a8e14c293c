package observability

import (
	"io"
	"os"
	"time"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger sets up the global console logger for a binary.
func InitLogger(app string, verbose bool) zerolog.Logger {
	return initLogger(os.Stderr, app, verbose)
}

func initLogger(out io.Writer, app string, verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ChipLog routes chip protocol messages to the logger at debug level. It
// returns nil when debug logging is off so the chip skips formatting.
func ChipLog(logger zerolog.Logger, chip string) battchip.LogFunc {
	if logger.GetLevel() > zerolog.DebugLevel {
		return nil
	}

	l := logger.With().Str("chip", chip).Logger()
	return func(format string, params ...interface{}) {
		l.Debug().Msgf(format, params...)
	}
}
