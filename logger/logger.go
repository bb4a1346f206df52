package logger

import (
	"go.uber.org/zap"
)

// Log 全局日志；Init 之前为空日志，测试无需初始化
var Log = zap.NewNop().Sugar()

func Init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// InitDevelopment 使用可读的控制台输出
func InitDevelopment() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}
