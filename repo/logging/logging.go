// Package logging provides named, leveled loggers for the simulator,
// mirroring the reference stack's "one *zap.SugaredLogger per package"
// convention (var log = logging.Module("allocsim/cli")).
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	base    *zap.Logger
	modules = map[string]*zap.SugaredLogger{}
)

func init() {
	base = newBaseLogger(false)
}

func newBaseLogger(jsonFormat bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "t"

	if jsonFormat {
		cfg.Encoding = "json"
	} else {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := cfg.Build()
	if err != nil {
		// Configuration above is static and known-good; a build failure here
		// would mean the zap API itself is broken.
		panic(err)
	}

	return l
}

// SetJSONFormat switches every module logger created from this point on (and
// retroactively reconfigures already-created ones) to JSON-encoded output,
// for the CLI's --json-log flag.
func SetJSONFormat(jsonFormat bool) {
	mu.Lock()
	defer mu.Unlock()

	base = newBaseLogger(jsonFormat)

	for name, existing := range modules {
		*existing = *base.Sugar().Named(name)
	}
}

// Module returns the named logger for the given package/module path,
// creating it on first use. Repeated calls with the same name return loggers
// that share configuration (level, encoding).
func Module(name string) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := modules[name]; ok {
		return l
	}

	l := base.Sugar().Named(name)
	modules[name] = l

	return l
}

// GetContextLoggerFunc returns a zero-argument accessor for the named
// logger, matching call sites that prefer `var log = logging.GetContextLoggerFunc("x")`
// followed by `log().Infof(...)`.
func GetContextLoggerFunc(name string) func() *zap.SugaredLogger {
	return func() *zap.SugaredLogger {
		return Module(name)
	}
}
