package conversions

import "github.com/sirupsen/logrus"

var log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "conversions")

func Init(logger *logrus.Logger) error {
	log = logger.WithFields(logrus.Fields{
		"component": "conversions",
	})
	return nil
}
