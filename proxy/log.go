package proxy

import (
	"context"
)

// LogService is the daemon's log service. Front-ends attach to it to
// receive Log signals from sessions they do not own a forward for.
type LogService struct {
	stub
}

// NewLogService binds to the log service object.
func NewLogService(conn Conn) *LogService {
	return &LogService{
		stub: newStub(conn, LogBusName, LogPath, LogInterface),
	}
}

// Attach subscribes the caller to log events from interface.
func (l *LogService) Attach(ctx context.Context, iface string) error {
	return l.invoke(ctx, "Attach", iface)
}

// Detach undoes Attach.
func (l *LogService) Detach(ctx context.Context, iface string) error {
	return l.invoke(ctx, "Detach", iface)
}

// LogLevel is the service's log verbosity.
func (l *LogService) LogLevel(ctx context.Context) (LogLevel, error) {
	v, err := get[uint32](ctx, l.stub, "log_level")
	if err != nil {
		return 0, err
	}
	return ParseLogLevel(v)
}

// SetLogLevel changes the service's log verbosity. Root only.
func (l *LogService) SetLogLevel(ctx context.Context, level LogLevel) error {
	return l.setProperty(ctx, "log_level", uint32(level))
}

// LogMethod names where the service writes its log, such as "journald".
func (l *LogService) LogMethod(ctx context.Context) (string, error) {
	return get[string](ctx, l.stub, "log_method")
}

// NumAttached is the number of attached log subscribers.
func (l *LogService) NumAttached(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, l.stub, "num_attached")
}
