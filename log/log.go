package log

import (
	"log"
)

var (
	logger Logger
)

// Logger can be provided by the embedding application to route btcswap
// logs into its own logging infrastructure.
type Logger interface {
	Infof(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

func SetLogger(l Logger) {
	logger = l
}

func Infof(format string, v ...interface{}) {
	if logger != nil {
		logger.Infof(format, v...)
	} else {
		log.Printf("[INFO] "+format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	if logger != nil {
		logger.Debugf(format, v...)
	} else {
		log.Printf("[DEBUG] "+format, v...)
	}
}
