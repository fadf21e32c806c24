package logging

import (
	"github.com/pkg/errors"
	"github.com/weaveworks/promrus"
)

// NewPrometheusHook returns a logrus hook counting log lines by level. The counter is registered with the default
// prometheus registry, so at most one hook can be created per process.
func NewPrometheusHook() (*promrus.PrometheusHook, error) {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to register log line counter")
	}
	return hook, nil
}
