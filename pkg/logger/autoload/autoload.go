// Package autoload initializes the global logger from LOG_* variables on import.
package autoload

import (
	"os"

	configx "github.com/tanpawarit/whiteboard-agent/pkg/config"
	logx "github.com/tanpawarit/whiteboard-agent/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.InitWriter(os.Stderr)
		return
	}
	logx.InitWriter(os.Stderr, *conf)
}
