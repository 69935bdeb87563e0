// Package match associates stored notification records with calendar events.
//
// Provider event ids are not always stable: some backends reissue ids on
// every fetch and the local id synthesis embeds the fetch time. Records are
// therefore indexed under several keys and looked up in decreasing order of
// precision: the event id, the summary with the full start, the summary with
// the start date, and finally the same two with a normalized summary.
package match

import (
	"strings"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

type Strategy string

const (
	StrategyNone           Strategy = "none"
	StrategyID             Strategy = "id"
	StrategySummaryFull    Strategy = "summary_full"
	StrategySummaryDate    Strategy = "summary_date"
	StrategyNormalizedFull Strategy = "normalized_full"
	StrategyNormalizedDate Strategy = "normalized_date"
)

// Match is the result of a lookup. Bindings is never nil; a miss is reported
// as StrategyNone with an empty slice.
type Match struct {
	Bindings []model.NotificationBinding
	Strategy Strategy
}

// Matcher attaches notifications to events.
type Matcher interface {
	Lookup(ev model.CalendarEvent) Match
}

// Index is an immutable multi-key lookup table built from one notification
// read.
type Index struct {
	keys map[string][]model.NotificationBinding
	loc  *time.Location
}

var _ Matcher = (*Index)(nil)

// Build indexes records. Starts are parsed in loc so that stored values with
// and without offsets or seconds land on the same key. Records with a
// negative offset are not valid bindings and are left out.
func Build(records []model.NotificationRecord, loc *time.Location) *Index {
	if loc == nil {
		loc = time.Local
	}
	idx := &Index{keys: make(map[string][]model.NotificationBinding), loc: loc}

	for _, r := range records {
		if r.OffsetMinutes < 0 {
			continue
		}
		b := r.Binding()
		seen := make(map[string]bool)
		add := func(key string) {
			if key == "" || seen[key] {
				return
			}
			seen[key] = true
			idx.keys[key] = append(idx.keys[key], b)
		}

		add(idKey(r.ID))
		add(idKey(r.EventID))

		start, allDay, err := timeutil.ParseFlexible(r.EventStart, loc)
		if err != nil || r.EventSummary == "" {
			continue
		}
		full, date := startKeys(start, allDay)
		norm := normalizeSummary(r.EventSummary)

		add("full:" + r.EventSummary + "|" + full)
		add("date:" + r.EventSummary + "|" + date)
		add("nfull:" + norm + "|" + full)
		add("ndate:" + norm + "|" + date)
	}
	return idx
}

// Lookup returns the bindings for ev from the most precise key that has any.
func (idx *Index) Lookup(ev model.CalendarEvent) Match {
	for _, c := range idx.candidates(ev) {
		if bindings := idx.keys[c.key]; len(bindings) > 0 {
			out := make([]model.NotificationBinding, len(bindings))
			copy(out, bindings)
			return Match{Bindings: out, Strategy: c.strategy}
		}
	}
	return Match{Bindings: []model.NotificationBinding{}, Strategy: StrategyNone}
}

// Len returns the number of distinct keys.
func (idx *Index) Len() int {
	return len(idx.keys)
}

type candidate struct {
	key      string
	strategy Strategy
}

func (idx *Index) candidates(ev model.CalendarEvent) []candidate {
	out := []candidate{{idKey(ev.ID), StrategyID}}
	if ev.Start.Time.IsZero() || ev.Summary == "" {
		return out
	}
	full, date := startKeys(ev.Start.Time.In(idx.loc), ev.IsAllDay)
	norm := normalizeSummary(ev.Summary)
	return append(out,
		candidate{"full:" + ev.Summary + "|" + full, StrategySummaryFull},
		candidate{"date:" + ev.Summary + "|" + date, StrategySummaryDate},
		candidate{"nfull:" + norm + "|" + full, StrategyNormalizedFull},
		candidate{"ndate:" + norm + "|" + date, StrategyNormalizedDate},
	)
}

func idKey(id string) string {
	if id == "" {
		return ""
	}
	return "id:" + id
}

func startKeys(start time.Time, allDay bool) (full, date string) {
	date = timeutil.DateString(start)
	if allDay {
		return date, date
	}
	return timeutil.LocalTimeString(start), date
}

func normalizeSummary(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
