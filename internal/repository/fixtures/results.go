package fixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
)

// ResultWriter writes one JSON object per match result. It implements
// usecase/batch.Sink and is safe for concurrent use.
type ResultWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewResultWriter creates a JSON Lines writer over w.
func NewResultWriter(w io.Writer) *ResultWriter {
	return &ResultWriter{enc: json.NewEncoder(w)}
}

// Put appends res as one line.
func (w *ResultWriter) Put(_ context.Context, res dommatch.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(res); err != nil {
		return fmt.Errorf("write result %s: %w", res.PostingID, err)
	}
	return nil
}
