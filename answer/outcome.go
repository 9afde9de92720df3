package answer

import "github.com/poiesic/carebuddy/core"

// Outcome classifies how a reply was produced.
type Outcome int

const (
	// NotFound means nothing relevant was retrieved.
	NotFound Outcome = iota
	// Partial means only tangentially related content was retrieved.
	Partial
	// Direct means retrieved content addresses the question.
	Direct
	// Failed means retrieval or generation failed and the apology was returned.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not_found"
	case Partial:
		return "partial"
	case Direct:
		return "direct"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Response is the full result of answering a question.
type Response struct {
	// Text is the reply for the patient. It is never empty.
	Text    string
	Outcome Outcome
	// Sources are the chunks the reply was grounded on.
	Sources []*core.RetrievalResult
	// Err is the failure behind a Failed outcome, for logging only.
	Err error
}
