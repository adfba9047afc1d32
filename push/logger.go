package push

import (
	"log"
	"os"
)

// Logger is satisfied by *log.Logger; callers may supply their own to
// route diagnostics (steady-state protocol errors, callback panics,
// restart failures) into structured logging.
type Logger interface {
	Printf(format string, v ...interface{})
}

func defaultLogger() Logger {
	return log.New(os.Stderr, "push: ", log.LstdFlags)
}
