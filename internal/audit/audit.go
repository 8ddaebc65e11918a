package audit

import (
	"time"

	"go.uber.org/zap"
)

// Event is one audit record. Amounts are fixed two-digit strings.
type Event struct {
	Timestamp time.Time
	EventType string
	BatchID   string
	UserID    string
	Amount    string
	Status    string
	Details   map[string]string
}

// Logger writes audit events to a dedicated named zap logger so they can
// be routed separately from application logs.
type Logger struct {
	log *zap.Logger
}

func NewLogger(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{log: base.Named("audit")}
}

// LogEntry records a committed ledger entry.
func (a *Logger) LogEntry(batchID, userID, kind, amount, balanceAfter string) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: "LEDGER_ENTRY",
		BatchID:   batchID,
		UserID:    userID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]string{
			"kind":          kind,
			"balance_after": balanceAfter,
		},
	})
}

func (a *Logger) LogError(batchID, userID string, err error) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: "ERROR",
		BatchID:   batchID,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) LogOperation(batchID, userID, operation, details string) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: operation,
		BatchID:   batchID,
		UserID:    userID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *Logger) write(e Event) {
	fields := []zap.Field{
		zap.Time("timestamp", e.Timestamp),
		zap.String("event_type", e.EventType),
		zap.String("batch_id", e.BatchID),
		zap.String("user_id", e.UserID),
		zap.String("status", e.Status),
	}
	if e.Amount != "" {
		fields = append(fields, zap.String("amount", e.Amount))
	}
	for k, v := range e.Details {
		fields = append(fields, zap.String(k, v))
	}
	a.log.Info("AUDIT", fields...)
}
