package handlers

import "github.com/sirupsen/logrus"

var log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "handlers")

func Init(logger *logrus.Logger) error {
	log = logger.WithFields(logrus.Fields{
		"component": "handlers",
	})
	return nil
}
