package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide sugared logger. It defaults to a nop logger so
// library code and tests can log without calling Init.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

func Init(env string) {
	var cfg zap.Config

	switch env {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	Log = l.Sugar()
}

func Sync() {
	if Log == nil {
		return
	}

	_ = Log.Sync()
}
