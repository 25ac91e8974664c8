package constant

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

var (
	//go:embed version
	Version     string
	compileTime string = "2025-06-14T10:22:48"
	CompileTime time.Time
)

func init() {
	Version = strings.TrimSpace(Version)
	t, err := time.Parse(time.RFC3339, time.Now().Format(time.RFC3339))
	if nil != err {
		panic(fmt.Errorf("could not parse CompileTime constant %q. Make sure it is set at build time", compileTime))
	}
	CompileTime = t
}
