package util

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "afip.util")

func DebugEnabled() bool {
	return etb("AFIP_DEBUG")
}

func HttpTraceEnabled() bool {
	return etb("AFIP_HTTP_TRACE")
}

func etb(envName string) bool {
	v, ok := os.LookupEnv(envName)
	if !ok {
		return false
	}

	bv, err := strconv.ParseBool(v)
	if err != nil && v != "" {
		logger.Warnf("%s: %q is not a boolean, ignored", envName, v)
	}

	return err == nil && bv
}

// GetEnvOrSkip zwraca wartość zmiennej lub "" i false, gdy brak - do testów integracyjnych.
func GetEnvOrSkip(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}
