package version

import (
	"fmt"
	"runtime"
)

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息，附带编译所用的 Go 版本。
func Full() string {
	return fmt.Sprintf("wqb-hub %s (%s, %s)", Version, Commit, runtime.Version())
}

// UserAgent 是访问研究平台时携带的 User-Agent。
func UserAgent() string {
	return "wqb-hub/" + Version
}
