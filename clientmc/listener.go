package clientmc

import "go.uber.org/zap"

// StatusListener observes connected-gateway-count transitions (§4.6). A
// logging-only default is provided so the module is runnable without the
// embedding application supplying one.
type StatusListener interface {
	GatewayCountChanged(newCount, oldCount int)
	ClusterConnectionLost()
}

type loggingStatusListener struct {
	logger *zap.Logger
}

// NewLoggingStatusListener returns a StatusListener that just logs
// transitions through logger.
func NewLoggingStatusListener(logger *zap.Logger) StatusListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingStatusListener{logger: logger}
}

func (l *loggingStatusListener) GatewayCountChanged(newCount, oldCount int) {
	l.logger.Info("gateway count changed", zap.Int("new", newCount), zap.Int("old", oldCount))
}

func (l *loggingStatusListener) ClusterConnectionLost() {
	l.logger.Warn("lost connection to every gateway")
}
