// Package autoload initialises the process logger from LOG_* env vars on
// import. Blank-import it from main.
package autoload

import (
	configx "github.com/YenAle-FT-Gmail/yensense/pkg/config"
	logx "github.com/YenAle-FT-Gmail/yensense/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
