// Package dates produces ordered trading-date candidates for bulk-data
// queries. Bulk endpoints return empty on non-trading days and before
// market close, so callers walk the candidates until one yields data.
package dates

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Layout is the wire format for trading dates.
const Layout = "20060102"

const maxLookback = 10

// kst is the exchange timezone; dates are resolved against it regardless
// of the host clock.
var kst = time.FixedZone("KST", 9*60*60)

// WorkingDateSource reports the broker's self-reported most recent working
// date. It is authoritative but not always reachable.
type WorkingDateSource interface {
	MaxWorkDate(ctx context.Context) (string, error)
}

// Resolver builds candidate date lists, most preferred first.
type Resolver struct {
	source WorkingDateSource
	now    func() time.Time
}

// NewResolver creates a resolver. source may be nil when no broker is
// configured; candidates then start from today.
func NewResolver(source WorkingDateSource) *Resolver {
	return &Resolver{source: source, now: time.Now}
}

// Candidates returns the ordered YYYYMMDD list. An explicit date short-
// circuits everything else.
func (r *Resolver) Candidates(ctx context.Context, explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	weekdays := r.recentWeekdays()

	if r.source != nil {
		if workDate, err := r.source.MaxWorkDate(ctx); err == nil && workDate != "" {
			out := make([]string, 0, len(weekdays)+1)
			out = append(out, workDate)
			for _, d := range weekdays {
				if d != workDate {
					out = append(out, d)
				}
			}
			if len(out) > maxLookback {
				out = out[:maxLookback]
			}
			return out
		} else if err != nil {
			log.Debug().Err(err).Msg("broker working date unavailable, using weekday walk")
		}
	}
	return weekdays
}

// recentWeekdays walks back from today in KST, keeping Mon-Fri only.
func (r *Resolver) recentWeekdays() []string {
	out := make([]string, 0, maxLookback)
	day := r.now().In(kst)
	for len(out) < maxLookback {
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			out = append(out, day.Format(Layout))
		}
		day = day.AddDate(0, 0, -1)
	}
	return out
}
