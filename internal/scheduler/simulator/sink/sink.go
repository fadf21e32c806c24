package sink

import (
	"github.com/sirupsen/logrus"

	"github.com/armadaproject/clustersim/internal/scheduler/simulator/model"
)

// Sink consumes the output of a simulation. Methods are called from the goroutine running the simulation.
type Sink interface {
	OnNewStateTransitions(transitions model.StateTransitions) error
	OnTickEnd(summary model.TickSummary) error
	Close()
}

// LoggingSink logs every status change at debug and a summary of every tick at info.
type LoggingSink struct {
	logger logrus.FieldLogger
}

func NewLoggingSink(logger logrus.FieldLogger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) OnNewStateTransitions(transitions model.StateTransitions) error {
	for _, change := range transitions.Changes {
		entry := s.logger.
			WithField("simulationId", transitions.SimulationId).
			WithField("jobId", change.JobId)
		if !change.IsJobChange() {
			entry = entry.WithField("instanceId", change.InstanceId).WithField("runId", change.RunId)
		}
		entry.Debugf("%s: %s -> %s", change.Time, change.Old, change.New)
	}
	return nil
}

func (s *LoggingSink) OnTickEnd(summary model.TickSummary) error {
	fields := logrus.Fields{
		"simulationId": summary.SimulationId,
		"available":    summary.Available.String(),
	}
	for status, n := range summary.JobsByStatus {
		if n > 0 {
			fields[status.String()] = n
		}
	}
	s.logger.WithFields(fields).Infof("simulated time %s", summary.Time)
	return nil
}

func (s *LoggingSink) Close() {}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) OnNewStateTransitions(model.StateTransitions) error { return nil }
func (NullSink) OnTickEnd(model.TickSummary) error                { return nil }
func (NullSink) Close()                                           {}
