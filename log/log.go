package log

import "go.uber.org/zap"

// Logger is usable before EnsureLogger runs; it discards everything until then.
var Logger = zap.NewNop()

func EnsureLogger(env string) {
	var err error
	if env == "prod" {
		Logger, err = zap.NewProduction()
	} else {
		Logger, err = zap.NewDevelopment()
	}
	if err != nil {
		Logger = zap.NewNop()
	}
}

func Sync() {
	_ = Logger.Sync()
}
