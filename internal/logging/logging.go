/*
Package logging
File: logging.go
Description:
    Builds the structured logger shared by every component.
*/

package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w at the named level (debug, info, warn, error).
func New(w io.Writer, level, prefix string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}), nil
}
