package queue

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

func newJobID() string {
	return uuid.NewString()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
