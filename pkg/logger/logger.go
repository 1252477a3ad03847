// Package logger provides the process-wide leveled loggers. Prefixes are
// colored on terminals and plain when output is piped.
package logger

import (
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
)

func init() {
	Info = log.New(os.Stdout,
		color.GreenString("[INFO] "),
		log.LstdFlags)
	Warn = log.New(os.Stdout,
		color.YellowString("[WARN] "),
		log.LstdFlags)
	Error = log.New(os.Stderr,
		color.RedString("[ERROR] "),
		log.LstdFlags)
}
