package domain

// ViewStatus tells an empty selection apart from a selection that matched
// nothing.
type ViewStatus string

const (
	StatusMatched     ViewStatus = "matched"
	StatusNoSelection ViewStatus = "no_selection"
	StatusNoMatch     ViewStatus = "no_match"
)

// Selection is a set of allowed category values.
type Selection map[string]struct{}

// NewSelection builds a Selection from category values, ignoring blanks.
func NewSelection(categories ...string) Selection {
	s := make(Selection, len(categories))
	for _, c := range categories {
		if c == "" {
			continue
		}
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether the category is selected.
func (s Selection) Contains(category string) bool {
	_, ok := s[category]
	return ok
}

// View is a filtered, order-preserving subset of scored records.
type View struct {
	Status  ViewStatus
	Records []ScoredRecord
}

// FilterView returns the records whose category is in the selection, in
// input order. The input slice is never modified. An empty selection yields
// an empty view with StatusNoSelection.
func FilterView(records []ScoredRecord, sel Selection) View {
	if len(sel) == 0 {
		return View{Status: StatusNoSelection, Records: []ScoredRecord{}}
	}
	out := make([]ScoredRecord, 0, len(records))
	for i := range records {
		if sel.Contains(records[i].Category) {
			out = append(out, records[i])
		}
	}
	if len(out) == 0 {
		return View{Status: StatusNoMatch, Records: out}
	}
	return View{Status: StatusMatched, Records: out}
}

// MapPoint is the only data handed to the map layer.
type MapPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	RiskLevel string  `json:"risk_level"`
}

// MapPoints projects records with a location to (lat, lon, level) triples.
func MapPoints(records []ScoredRecord) []MapPoint {
	out := make([]MapPoint, 0, len(records))
	for i := range records {
		loc := records[i].Location
		if loc == nil {
			continue
		}
		out = append(out, MapPoint{Lat: loc.Lat, Lon: loc.Lon, RiskLevel: records[i].RiskLevel})
	}
	return out
}
