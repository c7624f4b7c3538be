// Package logger provides structured logging for the caregate auth service.
//
// It wraps Uber's zap logger with a package-global instance configured from
// the LOG_LEVEL setting:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
//	logger.Log.Info("user logged in",
//	    zap.String("account_id", acct.ID),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
