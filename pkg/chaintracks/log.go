package chaintracks

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "chaintracks")
