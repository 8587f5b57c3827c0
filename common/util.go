package common

import (
	"os"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// GetUnitTestRedisAddr fetch the Redis address unit tests run against.
// Empty when the environment does not provide one.
func GetUnitTestRedisAddr() string {
	return os.Getenv("UNITTEST_REDIS_ADDR")
}

// GetUnitTestNatsURI fetch the NATS URI unit tests run against.
// Empty when the environment does not provide one.
func GetUnitTestNatsURI() string {
	return os.Getenv("UNITTEST_NATS_URI")
}
