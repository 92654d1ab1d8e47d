package pubsub

import (
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// zapPahoLogger adapts a zap logger to paho's Println/Printf logger
type zapPahoLogger struct {
	logger *zap.Logger
	level  func(*zap.Logger, string, ...zap.Field)
}

func (l zapPahoLogger) Println(v ...interface{}) {
	l.level(l.logger, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l zapPahoLogger) Printf(format string, v ...interface{}) {
	l.level(l.logger, fmt.Sprintf(format, v...))
}

var enableLoggingOnce sync.Once

// EnableLibraryLogging routes the MQTT library's internal logging to zap.
// The library loggers are process-wide, so only the first call takes effect.
func EnableLibraryLogging(logger *zap.Logger) {
	enableLoggingOnce.Do(func() {
		l := logger.Named("paho")
		mqtt.ERROR = zapPahoLogger{logger: l, level: (*zap.Logger).Error}
		mqtt.CRITICAL = zapPahoLogger{logger: l, level: (*zap.Logger).Error}
		mqtt.WARN = zapPahoLogger{logger: l, level: (*zap.Logger).Warn}
		mqtt.DEBUG = zapPahoLogger{logger: l, level: (*zap.Logger).Debug}
	})
}
