package records

import "github.com/sirupsen/logrus"

var log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "records")

func Init(logger *logrus.Logger) error {
	log = logger.WithFields(logrus.Fields{
		"component": "records",
	})
	return nil
}
