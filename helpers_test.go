package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestLogManager(t *testing.T) (*LogManager, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &LogManager{logger: logger, serverID: "test"}, hook
}

func hasLog(hook *test.Hook, message string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == message {
			return true
		}
	}
	return false
}

func testTime() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}
