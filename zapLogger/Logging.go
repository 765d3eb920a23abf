package zapLogger

import (
	"io"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once sync.Once
	base *zap.Logger

	// Log is the shared sugared logger, set by Init.
	Log *zap.SugaredLogger
)

// Init initializes the zap logger writing to stdout and the given file,
// and returns the opened log file handle.
func Init(path string, level zapcore.Level) *os.File {
	var logFile *os.File
	once.Do(func() {
		if path == "" {
			path = "app.log"
		}
		var err error
		logFile, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic("cannot open log file: " + err.Error())
		}

		fileWriter := zapcore.AddSync(logFile)
		consoleWriter := zapcore.AddSync(os.Stdout)

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.NewMultiWriteSyncer(consoleWriter, fileWriter),
			level,
		)

		base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
		Log = base.Sugar()
	})
	return logFile
}

// Logger returns the unsugared logger for components that take *zap.Logger.
func Logger() *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base
}

// FiberLoggingMiddleware returns Fiber's built-in logger middleware writing
// request logs to stdout and the given logFile.
func FiberLoggingMiddleware(logFile *os.File) fiber.Handler {
	return logger.New(logger.Config{
		Output:     io.MultiWriter(os.Stdout, logFile),
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	})
}
