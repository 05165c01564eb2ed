package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/ironsheep/cardscan/internal/detection"
)

// Report is the JSON summary of one detection run, as printed by the CLI
// and returned by the card_detect tool.
type Report struct {
	ID       string                    `json:"id"`
	Source   string                    `json:"source,omitempty"`
	Time     time.Time                 `json:"time"`
	Width    int                       `json:"width"`
	Height   int                       `json:"height"`
	Contours int                       `json:"contours"`
	Cards    []detection.CardCandidate `json:"cards"`
	Rejected map[detection.Reason]int  `json:"rejected,omitempty"`
	Backend  Backend                   `json:"backend"`
	Error    string                    `json:"error,omitempty"`

	// Evaluated is every contour's verdict; only set by IncludeEvaluated.
	Evaluated []detection.CardCandidate `json:"evaluated,omitempty"`
}

// NewReport summarizes res. source is usually the image path.
func (p *Pipeline) NewReport(source string, res *Result) *Report {
	r := &Report{
		ID:      uuid.NewString(),
		Source:  source,
		Time:    time.Now().UTC(),
		Backend: p.cfg.Backend,
		Cards:   []detection.CardCandidate{},
	}
	if res == nil {
		return r
	}
	r.Width, r.Height = res.Width, res.Height
	r.Contours = len(res.Contours)
	r.Cards = append(r.Cards, res.Cards...)
	if rej := res.Rejected(); len(rej) > 0 {
		r.Rejected = rej
	}
	return r
}

// IncludeEvaluated attaches the verdict for every contour of res.
func (r *Report) IncludeEvaluated(res *Result) *Report {
	if res != nil {
		r.Evaluated = res.Evaluated
	}
	return r
}

// FailedReport records a run that produced no Result.
func (p *Pipeline) FailedReport(source string, err error) *Report {
	r := p.NewReport(source, nil)
	r.Error = err.Error()
	return r
}
