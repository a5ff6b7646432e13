package audit

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func cloneRecords(records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, r := range records {
		c := *r
		if r.Payload != nil {
			c.Payload = make(map[string]any, len(r.Payload))
			for k, v := range r.Payload {
				c.Payload[k] = v
			}
		}
		out[i] = &c
	}
	return out
}

// Property: a chain of any length verifies intact, and editing the payload of
// any single record is detected at exactly that record.
func TestChainTamperDetectionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("any single edit breaks the chain at the edit", prop.ForAll(
		func(n int, victimSeed int) bool {
			l, err := New(&Config{})
			if err != nil {
				return false
			}
			defer l.Close()

			for i := 0; i < n; i++ {
				if _, err := l.Append(&Record{
					Actor:   "op-1",
					Kind:    KindAuthAttempt,
					Payload: map[string]any{"attempt": i},
				}); err != nil {
					return false
				}
			}

			records := l.Query(nil)
			if res := VerifyRecords(records); !res.Valid {
				return false
			}

			tampered := cloneRecords(records)
			victim := victimSeed % n
			tampered[victim].Payload["attempt"] = -1

			res := VerifyRecords(tampered)
			return !res.Valid && res.FirstBadSeq == tampered[victim].Sequence
		},
		gen.IntRange(1, 25),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}
