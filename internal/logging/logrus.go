package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	logg.SetLevel(logrus.WarnLevel)
	logg.SetOutput(os.Stderr)
}

// SetLevel parses a level name ("debug", "info", ...). Unknown names keep the current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	logg.SetLevel(lvl)
	return nil
}

// WithComponent tags entries with the component that produced them.
func WithComponent(name string) *logrus.Entry {
	return logg.WithField("component", name)
}
