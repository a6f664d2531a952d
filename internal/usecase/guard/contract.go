package guard

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// OperationMonitor records monitored operations (ISP).
type OperationMonitor interface {
	Start(opType, fieldName string, fields ...zap.Field) string
	End(id string, err error) (monitor.Record, bool)
}
