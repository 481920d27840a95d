// Package gslog provides per-component *log.Logger instances. It does not
// introduce a structured-logging dependency: the rest of this codebase logs
// with log.Printf the way its upstream does, and this package only adds a
// consistent prefix per component.
package gslog

import (
	"log"
	"os"
)

// New returns a logger that prefixes every line with "<component>: ".
func New(component string) *log.Logger {
	return log.New(os.Stderr, component+": ", log.LstdFlags)
}
