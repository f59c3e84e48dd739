package entity

// Recurrence pattern types
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
	RecurYearly  = "yearly"
)

// RecurrencePattern is the shared rule behind a repeating series.
// Every occurrence entity references it by ID; the canonical first
// occurrence owns its lifecycle.
type RecurrencePattern struct {
	ID            string `json:"id,omitempty"`
	ObjType       string `json:"obj_type,omitempty"`
	FirstEntityID string `json:"first_entity_id,omitempty"`

	Type     string `json:"type"`
	Interval int    `json:"interval,omitempty"`

	DayOfMonth  int `json:"day_of_month,omitempty"`
	MonthOfYear int `json:"month_of_year,omitempty"`
	// DayOfWeekMask is a bitmask, Sunday = bit 0
	DayOfWeekMask int `json:"day_of_week_mask,omitempty"`

	DateStart int64 `json:"date_start,omitempty"`
	DateEnd   int64 `json:"date_end,omitempty"`
}

// IsSaved reports whether the pattern has been assigned an id
func (p *RecurrencePattern) IsSaved() bool {
	return p.ID != ""
}

// EntityIsFirst reports whether the given entity owns the canonical
// first occurrence of the series
func (p *RecurrencePattern) EntityIsFirst(entityID string) bool {
	return entityID != "" && p.FirstEntityID == entityID
}

// ToMap serializes the pattern for embedding in an entity document
func (p *RecurrencePattern) ToMap() map[string]any {
	m := map[string]any{
		"type": p.Type,
	}
	if p.ID != "" {
		m["id"] = p.ID
	}
	if p.ObjType != "" {
		m["obj_type"] = p.ObjType
	}
	if p.FirstEntityID != "" {
		m["first_entity_id"] = p.FirstEntityID
	}
	if p.Interval != 0 {
		m["interval"] = int64(p.Interval)
	}
	if p.DayOfMonth != 0 {
		m["day_of_month"] = int64(p.DayOfMonth)
	}
	if p.MonthOfYear != 0 {
		m["month_of_year"] = int64(p.MonthOfYear)
	}
	if p.DayOfWeekMask != 0 {
		m["day_of_week_mask"] = int64(p.DayOfWeekMask)
	}
	if p.DateStart != 0 {
		m["date_start"] = p.DateStart
	}
	if p.DateEnd != 0 {
		m["date_end"] = p.DateEnd
	}
	return m
}

// RecurrencePatternFromMap rebuilds a pattern from its embedded form
func RecurrencePatternFromMap(data map[string]any) *RecurrencePattern {
	if data == nil {
		return nil
	}
	p := &RecurrencePattern{}
	if v, ok := data["id"]; ok {
		p.ID = stringifyValue(v)
	}
	if v, ok := data["obj_type"].(string); ok {
		p.ObjType = v
	}
	if v, ok := data["first_entity_id"]; ok {
		p.FirstEntityID = stringifyValue(v)
	}
	if v, ok := data["type"].(string); ok {
		p.Type = v
	}
	p.Interval = int(toInt64(data["interval"]))
	p.DayOfMonth = int(toInt64(data["day_of_month"]))
	p.MonthOfYear = int(toInt64(data["month_of_year"]))
	p.DayOfWeekMask = int(toInt64(data["day_of_week_mask"]))
	p.DateStart = toInt64(data["date_start"])
	p.DateEnd = toInt64(data["date_end"])
	return p
}
