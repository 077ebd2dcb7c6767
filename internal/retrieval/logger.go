package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// QueryRecord is one line of the retrieval audit log.
type QueryRecord struct {
	At            time.Time `json:"at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	URL           string    `json:"url"`
	Collection    string    `json:"collection"`
	Query         string    `json:"query"`
	TopK          int       `json:"top_k"`
	Returned      int       `json:"returned"`
	TopScore      float64   `json:"top_score,omitempty"`
	Reranked      bool      `json:"reranked,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w)}
}

// NewFileQueryLogger appends JSON lines to path, rotating at 50MB.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	f := &lumberjack.Logger{Filename: path, MaxSize: 50, MaxBackups: 3}
	// lumberjack opens lazily; fail fast on an unwritable path.
	if _, err := f.Write(nil); err != nil {
		return nil, err
	}
	l := NewQueryLogger(f)
	l.c = f
	return l, nil
}

func (l *QueryLogger) Log(rec QueryRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(rec); err != nil {
		slog.Error("query log write failed", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l == nil || l.c == nil {
		return nil
	}
	return l.c.Close()
}
