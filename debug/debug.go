package debug

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//
// Debug output is controled by the LIBOSDEBUG environment variable,
// which can be a list of labels (e.g., "EXIT;WAIT;FUTEX").  Labels are
// read once, the first time something is logged.
//

const DEBUG_ENV = "LIBOSDEBUG"

var (
	once   sync.Once
	labels map[Tselector]bool
	logger *zap.SugaredLogger
)

func initLogger() {
	labels = debugLabels(os.Getenv(DEBUG_ENV))
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	cfg.EncoderConfig.LevelKey = ""
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

func debugLabels(s string) map[Tselector]bool {
	m := make(map[Tselector]bool)
	if s == "" {
		return m
	}
	for _, l := range strings.Split(s, ";") {
		m[Tselector(strings.TrimSpace(l))] = true
	}
	return m
}

// WillBePrinted reports whether output for label is enabled.
func WillBePrinted(label Tselector) bool {
	once.Do(initLogger)
	return label == ALWAYS || labels[label]
}

func DPrintf(label Tselector, format string, v ...interface{}) {
	if WillBePrinted(label) {
		logger.Infof("%v %v", label, fmt.Sprintf(format, v...))
	}
}

// DFatalf reports a violated invariant of the core and terminates the
// program.  It is never used for errors a caller can provoke.
func DFatalf(format string, v ...interface{}) {
	once.Do(initLogger)
	pc, file, line, ok := runtime.Caller(1)
	fnDetails := runtime.FuncForPC(pc)
	if ok && fnDetails != nil {
		logger.Fatalf("FATAL %v %v:%v %v", fnDetails.Name(), file, line, fmt.Sprintf(format, v...))
	} else {
		logger.Fatalf("FATAL (missing details) %v", fmt.Sprintf(format, v...))
	}
}
