// Package audit implements the append-only, hash-chained audit log. Every
// authentication attempt, workflow transition, approval decision, and
// escalation passes through here before it is surfaced to callers.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dd0wney/fieldgate/pkg/metrics"
)

var (
	ErrAppendFailed   = errors.New("audit append failed")
	ErrRecordNotFound = errors.New("audit record not found")
	ErrEmptyActor     = errors.New("audit record requires an actor")
	ErrEmptyKind      = errors.New("audit record requires a kind")
)

// Log is an append-only audit log with a tamper-evident hash chain.
// A single writer owns each segment; the append lock is scoped to the log,
// not to sessions, so session workers never serialize on anything else.
type Log struct {
	mu       sync.Mutex
	records  []*Record
	lastHash string
	nextSeq  uint64

	// persistence (nil writer = memory only)
	dir          string
	file         *os.File
	writer       *bufio.Writer
	segmentStart time.Time
	segmentBytes int64
	rotationSize int64
	rotationTime time.Duration

	// rotated segment paths, oldest first
	rotated []string

	onRotate func(path string)
	metrics  *metrics.Registry
}

// New creates an audit log. With cfg.LogDir empty the log is memory only
// (tests); otherwise records are persisted as JSONL segments, fsynced on
// every append.
func New(cfg *Config) (*Log, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Log{
		nextSeq:      1,
		dir:          cfg.LogDir,
		rotationSize: cfg.RotationSize,
		rotationTime: cfg.RotationTime,
		segmentStart: time.Now(),
	}
	if l.dir != "" {
		if err := os.MkdirAll(l.dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
		if err := l.recover(); err != nil {
			return nil, err
		}
		if err := l.openSegment(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// SetRotationHook registers a callback invoked with the path of each rotated
// segment. Used by the archiver to ship closed segments to object storage.
func (l *Log) SetRotationHook(fn func(path string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRotate = fn
}

// SetMetrics attaches a metrics registry. nil leaves metrics off.
func (l *Log) SetMetrics(m *metrics.Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
}

// Append assigns the next sequence id, chains the record to its predecessor,
// and durably writes it. Returns the assigned sequence id. An error here is
// system-fatal for new session creation: the caller must fail closed.
func (l *Log) Append(r *Record) (uint64, error) {
	seq, err := l.append(r)
	l.metrics.RecordAuditAppend(string(r.Kind), err == nil, seq)
	return seq, err
}

func (l *Log) append(r *Record) (uint64, error) {
	if r.Actor == "" {
		return 0, ErrEmptyActor
	}
	if r.Kind == "" {
		return 0, ErrEmptyKind
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.Severity == "" {
		r.Severity = SeverityInfo
	}
	r.Sequence = l.nextSeq
	r.PrevHash = l.lastHash

	if r.Payload != nil {
		payloadBytes, err := json.Marshal(r.Payload)
		if err != nil {
			return 0, fmt.Errorf("%w: marshal payload: %v", ErrAppendFailed, err)
		}
		sum := sha256.Sum256(payloadBytes)
		r.PayloadHash = hex.EncodeToString(sum[:])
	}

	r.RecordHash = ""
	chainBytes, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal record: %v", ErrAppendFailed, err)
	}
	sum := sha256.Sum256(chainBytes)
	r.RecordHash = hex.EncodeToString(sum[:])

	if l.writer != nil {
		line, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("%w: marshal record: %v", ErrAppendFailed, err)
		}
		line = append(line, '\n')
		n, err := l.writer.Write(line)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrAppendFailed, err)
		}
		if err := l.writer.Flush(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrAppendFailed, err)
		}
		// Sync before acknowledging: audit durability is on the correctness
		// path for every gated action.
		if err := l.file.Sync(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrAppendFailed, err)
		}
		l.segmentBytes += int64(n)
	}

	l.records = append(l.records, r)
	l.lastHash = r.RecordHash
	l.nextSeq++

	if l.writer != nil && l.shouldRotate() {
		if err := l.rotate(); err != nil {
			return r.Sequence, fmt.Errorf("%w: rotate: %v", ErrAppendFailed, err)
		}
	}

	return r.Sequence, nil
}

// Get returns the record with the given sequence id
func (l *Log) Get(sequence uint64) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.Sequence == sequence {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: sequence %d", ErrRecordNotFound, sequence)
}

// Replay returns records with sequence >= from, in append order
func (l *Log) Replay(from uint64) []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Record, 0, len(l.records))
	for _, r := range l.records {
		if r.Sequence >= from {
			out = append(out, r)
		}
	}
	return out
}

// Query returns records matching the filter, in append order
func (l *Log) Query(filter *Filter) []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Record
	for _, r := range l.records {
		if filter.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// BySession returns all records referencing the session
func (l *Log) BySession(sessionID string) []*Record {
	return l.Query(&Filter{SessionID: sessionID})
}

// ByIncident returns all records referencing the incident
func (l *Log) ByIncident(incidentID string) []*Record {
	return l.Query(&Filter{IncidentID: incidentID})
}

// ByApproval returns all records referencing the approval request
func (l *Log) ByApproval(approvalID string) []*Record {
	return l.Query(&Filter{ApprovalID: approvalID})
}

// Count returns the number of records appended to this log
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// LastHash returns the chain head hash
func (l *Log) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Close flushes and closes the active segment
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			return err
		}
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// recover reloads existing segments so the chain and sequence continue
// across restarts.
func (l *Log) recover() error {
	paths, err := segmentPaths(l.dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		records, err := readSegment(path)
		if err != nil {
			return fmt.Errorf("failed to recover audit segment %s: %w", path, err)
		}
		for _, r := range records {
			l.records = append(l.records, r)
			l.lastHash = r.RecordHash
			l.nextSeq = r.Sequence + 1
		}
	}
	return nil
}

func (l *Log) openSegment() error {
	name := fmt.Sprintf("audit-%s.jsonl", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(l.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit segment: %w", err)
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	l.segmentStart = time.Now()
	l.segmentBytes = 0
	return nil
}

func (l *Log) shouldRotate() bool {
	if l.rotationSize > 0 && l.segmentBytes >= l.rotationSize {
		return true
	}
	if l.rotationTime > 0 && time.Since(l.segmentStart) >= l.rotationTime {
		return true
	}
	return false
}

func (l *Log) rotate() error {
	if err := l.writer.Flush(); err != nil {
		return err
	}
	closed := l.file.Name()
	if err := l.file.Close(); err != nil {
		return err
	}
	l.rotated = append(l.rotated, closed)

	if err := l.openSegment(); err != nil {
		return err
	}
	l.metrics.RecordAuditRotation()
	if l.onRotate != nil {
		go l.onRotate(closed)
	}
	return nil
}

func segmentPaths(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		return nil, err
	}
	// Glob returns lexically sorted paths; the timestamped names keep
	// segments in chronological order.
	return matches, nil
}

func readSegment(path string) ([]*Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []*Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, scanner.Err()
}
