package raftchaos

import (
	"github.com/sirupsen/logrus"
)

var plog = logrus.WithField("module", "raftchaos")

// SetLogger redirects the harness's log output, e.g. into a test logger.
func SetLogger(l *logrus.Logger) {
	plog = l.WithField("module", "raftchaos")
}
