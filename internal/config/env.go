package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

// loader collects every missing or malformed variable so that a single
// startup error lists all of them.
type loader struct {
	problems []string
}

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.problems = append(l.problems, "missing required env var: "+key)
	}
	return v
}

// seconds reads a whole number of seconds, falling back to d when unset.
func (l *loader) seconds(key string, d time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		l.problems = append(l.problems, fmt.Sprintf("invalid seconds for %s: %q", key, v))
		return d
	}
	return time.Duration(n) * time.Second
}

// uint reads a non-negative 32-bit integer, falling back to d when unset.
func (l *loader) uint(key string, d uint32) uint32 {
	return uint32(l.unsigned(key, uint64(d), 32))
}

// uint8 reads a value in [0, 255], falling back to d when unset.
func (l *loader) uint8(key string, d uint8) uint8 {
	return uint8(l.unsigned(key, uint64(d), 8))
}

func (l *loader) unsigned(key string, d uint64, bits int) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("invalid %d-bit unsigned int for %s: %q", bits, key, v))
		return d
	}
	return n
}
