package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Day group labels
const (
	LabelToday       = "Today"
	LabelYesterday   = "Yesterday"
	LabelUnknownDate = "Unknown date"

	dayKeyLayout   = "2006-01-02"
	dayLabelLayout = "02/01/2006"
)

// DayGroup is one section of the balance history list
type DayGroup struct {
	// Key is the local calendar day as YYYY-MM-DD, or "" for entries whose
	// date could not be parsed.
	Key     string
	Label   string
	Records []Transaction
}

// GroupByDay groups ledger entries by local calendar day for a sectioned list.
//
// Entries are keyed by the day of TransactionDate in loc; zone-less dates are
// read as wall-clock time in loc. Inside a group they
// are ordered newest first; groups are ordered by their newest entry. A group
// is labelled "Today" or "Yesterday" relative to now, otherwise DD/MM/YYYY.
// Entries with an unknown date are kept in a trailing "Unknown date" group.
// The result is never nil and every input record appears exactly once.
func GroupByDay(records []Transaction, now time.Time, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	groups := make([]DayGroup, 0)
	if len(records) == 0 {
		return groups
	}

	index := make(map[string]int)
	var unknown []Transaction
	for _, r := range records {
		if r.When().IsZero() {
			unknown = append(unknown, r)
			continue
		}
		key := r.WhenIn(loc).Format(dayKeyLayout)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}

	for i := range groups {
		recs := groups[i].Records
		sort.SliceStable(recs, func(a, b int) bool {
			return recs[a].WhenIn(loc).After(recs[b].WhenIn(loc))
		})
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ta, tb := groups[a].Records[0].WhenIn(loc), groups[b].Records[0].WhenIn(loc)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return groups[a].Key > groups[b].Key
	})

	today := now.In(loc).Format(dayKeyLayout)
	yesterday := now.In(loc).AddDate(0, 0, -1).Format(dayKeyLayout)
	for i := range groups {
		groups[i].Label = dayLabel(groups[i].Key, today, yesterday, loc)
	}

	if len(unknown) > 0 {
		groups = append(groups, DayGroup{Key: "", Label: LabelUnknownDate, Records: unknown})
	}
	return groups
}

func dayLabel(key, today, yesterday string, loc *time.Location) string {
	switch key {
	case today:
		return LabelToday
	case yesterday:
		return LabelYesterday
	}
	day, err := time.ParseInLocation(dayKeyLayout, key, loc)
	if err != nil {
		return key
	}
	return day.Format(dayLabelLayout)
}

// Flatten returns the records of all groups in display order
func Flatten(groups []DayGroup) []Transaction {
	n := 0
	for _, g := range groups {
		n += len(g.Records)
	}
	out := make([]Transaction, 0, n)
	for _, g := range groups {
		out = append(out, g.Records...)
	}
	return out
}

// Summary totals the credits and debits of a set of entries
type Summary struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
	Count   int
	// Latest is the balance snapshot of the newest dated entry
	Latest decimal.Decimal
}

// Net returns credits plus debits (debits are negative)
func (s Summary) Net() decimal.Decimal {
	return s.Credits.Add(s.Debits)
}

// Summarize totals a list of entries
func Summarize(records []Transaction) Summary {
	s := Summary{Credits: decimal.Zero, Debits: decimal.Zero, Latest: decimal.Zero}
	var latest time.Time
	for _, r := range records {
		s.Count++
		switch {
		case r.IsCredit():
			s.Credits = s.Credits.Add(r.Amount)
		case r.IsDebit():
			s.Debits = s.Debits.Add(r.Amount)
		}
		if !r.When().IsZero() && r.When().After(latest) {
			latest = r.When()
			s.Latest = r.CurrentBalance
		}
	}
	return s
}
