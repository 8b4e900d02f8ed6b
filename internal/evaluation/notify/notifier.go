package notify

import "context"

// SearchMessage summarizes a finished search run.
type SearchMessage struct {
	RunID      string             `json:"run_id"`
	Status     string             `json:"status"`
	CorpusRoot string             `json:"corpus_root"`
	CorpusSize int                `json:"corpus_size"`
	Cells      int                `json:"cells"`
	Best       map[string]float64 `json:"best,omitempty"`
	ReportURL  string             `json:"report_url,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg SearchMessage) error
}
