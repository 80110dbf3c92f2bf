package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// setupLog points the default logger at stderr and, when the build
// directory exists, a build.log inside it. Returns a closer for the
// log file.
func setupLog(verbosity int) (func() error, error) {
	switch {
	case verbosity >= 2:
		log.SetLevel(log.DebugLevel)
	case verbosity == 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}

	if logFile := os.Getenv("OPENDEC_LOGFILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
		log.SetReportTimestamp(true)
		return f.Close, nil
	}

	if st, err := os.Stat(buildDir); err == nil && st.IsDir() {
		f, err := os.OpenFile(filepath.Join(buildDir, "build.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			log.SetOutput(io.MultiWriter(os.Stderr, f))
			log.SetReportTimestamp(true)
			return f.Close, nil
		}
	}

	log.SetOutput(os.Stderr)
	return func() error { return nil }, nil
}
