package health

import (
	"os"
	"runtime"
)

// AuditLogCheck probes whether the audit log can accept appends. This is a
// readiness check: new sessions must be refused when auditing is down.
func AuditLogCheck(probe func() error) CheckFunc {
	return func() Check {
		check := Check{Name: "audit_log"}

		if err := probe(); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Append path writable"
		}

		return check
	}
}

// RegistryCheck verifies the operator registry is loaded
func RegistryCheck(count func() (operators, zones int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "registry",
			Details: make(map[string]any),
		}

		operators, zones := count()
		check.Details["operators"] = operators
		check.Details["zones"] = zones

		if operators == 0 {
			check.Status = StatusDegraded
			check.Message = "No operators provisioned"
		} else {
			check.Status = StatusHealthy
			check.Message = "Registry loaded"
		}

		return check
	}
}

// EvidenceDirCheck verifies the evidence store directory is writable
func EvidenceDirCheck(dir string) CheckFunc {
	return func() Check {
		check := Check{Name: "evidence_store"}

		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		f.Close()
		os.Remove(f.Name())

		check.Status = StatusHealthy
		check.Message = "Writable"
		return check
	}
}

// SessionLoadCheck reports session and approval load
func SessionLoadCheck(load func() (sessions, pendingApprovals int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "workload",
			Details: make(map[string]any),
		}

		sessions, pending := load()
		check.Details["active_sessions"] = sessions
		check.Details["pending_approvals"] = pending

		check.Status = StatusHealthy
		check.Message = "Normal"
		return check
	}
}

// MemoryCheck reports heap pressure
func MemoryCheck() CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		check.Details["alloc_bytes"] = m.Alloc
		check.Details["sys_bytes"] = m.Sys

		if m.Sys > 0 && float64(m.Alloc)/float64(m.Sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}
