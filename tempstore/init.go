package tempstore

import "github.com/sirupsen/logrus"

var log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "tempstore")

func Init(logger *logrus.Logger) error {
	log = logger.WithFields(logrus.Fields{
		"component": "tempstore",
	})
	return nil
}
