package schedulermocks

// Mock implementations used by simulator tests
//go:generate mockgen -destination=./mock_sink.go -package=schedulermocks "github.com/armadaproject/clustersim/internal/scheduler/simulator/sink" Sink
