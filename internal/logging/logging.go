package logging

import (
	"os"

	"roaming/internal/errs"

	"github.com/sirupsen/logrus"
)

func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// LogError writes a single error entry. Fields carried by structured errors
// in err's chain are added next to the call-site fields.
func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	if err == nil {
		logger.WithFields(fields).Error(context)
		return
	}
	for k, v := range errs.FieldsOf(err) {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	fields["code"] = string(errs.CodeOf(err))
	logger.WithFields(fields).Error(err.Error())
}
