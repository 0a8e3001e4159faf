package main

import (
	"fmt"
	"runtime"

	"github.com/tapehub/tapehub/internal/version"
)

// printVersion 输出版本、提交与构建平台。
func printVersion() {
	fmt.Fprintf(stdOut, "%s %s %s/%s\n", version.Full(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
