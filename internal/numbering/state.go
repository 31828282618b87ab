package numbering

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"invoicekit/pkg/models"
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Counters holds the next sequence per kind for one year.
type Counters map[models.Kind]int

// State maps a 4-digit year to its counters. A missing year or kind means
// the next sequence is 1.
type State map[string]Counters

// Next returns the next free sequence for year and kind.
func (s State) Next(year string, kind models.Kind) int {
	if n := s[year][kind]; n >= 1 {
		return n
	}
	return 1
}

func (s State) set(year string, kind models.Kind, next int) {
	c, ok := s[year]
	if !ok {
		c = make(Counters, len(models.Kinds))
		s[year] = c
	}
	c[kind] = next
}

// ensure creates the zero-initialized year entry (next = 1 for every kind).
func (s State) ensure(year string) {
	if _, ok := s[year]; ok {
		for _, k := range models.Kinds {
			if s[year][k] < 1 {
				s[year][k] = 1
			}
		}
		return
	}
	c := make(Counters, len(models.Kinds))
	for _, k := range models.Kinds {
		c[k] = 1
	}
	s[year] = c
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for year, c := range s {
		cc := make(Counters, len(c))
		for k, v := range c {
			cc[k] = v
		}
		out[year] = cc
	}
	return out
}

// unknownEntries holds the persisted entries this build does not read: whole
// years that are not 4 digits or not objects, and per-year members that are
// not a known kind with a positive integer. They are written back on Save so
// that an older build does not erase a newer writer's counters.
type unknownEntries struct {
	years map[string]json.RawMessage
	kinds map[string]map[string]json.RawMessage
}

// decodeState parses the persisted record. Entries it cannot use are skipped
// and returned in unknownEntries.
func decodeState(data []byte) (State, unknownEntries, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, unknownEntries{}, fmt.Errorf("decode counter state: %w", err)
	}
	state := make(State, len(raw))
	unknown := unknownEntries{
		years: map[string]json.RawMessage{},
		kinds: map[string]map[string]json.RawMessage{},
	}
	for year, msg := range raw {
		if !yearPattern.MatchString(year) {
			unknown.years[year] = msg
			continue
		}
		c, extra, ok := decodeCounters(msg)
		if !ok {
			unknown.years[year] = msg
			continue
		}
		if len(c) > 0 {
			state[year] = c
		}
		if len(extra) > 0 {
			unknown.kinds[year] = extra
		}
	}
	return state, unknown, nil
}

// decodeCounters splits one year's object into the counters of known kinds
// and everything else. ok is false when data is not a JSON object.
func decodeCounters(data []byte) (c Counters, extra map[string]json.RawMessage, ok bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, nil, false
	}
	c = make(Counters, len(models.Kinds))
	for name, msg := range raw {
		kind := models.Kind(name)
		var next int
		if kind.Valid() && json.Unmarshal(msg, &next) == nil && next >= 1 {
			c[kind] = next
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[name] = msg
	}
	return c, extra, true
}

// encodeCounters merges c over extra into one JSON object.
func encodeCounters(c Counters, extra map[string]json.RawMessage) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(c)+len(extra))
	for name, msg := range extra {
		out[name] = msg
	}
	for kind, next := range c {
		out[string(kind)] = json.RawMessage(strconv.Itoa(next))
	}
	return json.Marshal(out)
}

// encodeState writes state and the unknown entries back into one indented
// record. Years present in state replace unknown years of the same key.
func encodeState(state State, unknown unknownEntries) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(state)+len(unknown.years))
	for year, msg := range unknown.years {
		out[year] = msg
	}
	for year, c := range state {
		msg, err := encodeCounters(c, unknown.kinds[year])
		if err != nil {
			return nil, fmt.Errorf("encode counters for %s: %w", year, err)
		}
		out[year] = msg
	}
	// years with only unknown members
	for year, extra := range unknown.kinds {
		if _, ok := out[year]; ok {
			continue
		}
		msg, err := encodeCounters(nil, extra)
		if err != nil {
			return nil, fmt.Errorf("encode counters for %s: %w", year, err)
		}
		out[year] = msg
	}
	return json.MarshalIndent(out, "", "  ")
}
