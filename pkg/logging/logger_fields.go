package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

func OperatorID(id string) Field {
	return String("operator_id", id)
}

func SessionID(id string) Field {
	return String("session_id", id)
}

func IncidentID(id string) Field {
	return String("incident_id", id)
}

func ApprovalID(id string) Field {
	return String("approval_id", id)
}

func ZoneID(id string) Field {
	return String("zone_id", id)
}

func Channel(name string) Field {
	return String("channel", name)
}

func Reason(r string) Field {
	return String("reason", r)
}

func RiskTier(t string) Field {
	return String("risk_tier", t)
}

func ApprovalLevel(l int) Field {
	return Int("approval_level", l)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Attempt(n int) Field {
	return Int("attempt", n)
}
