package domain

import "sort"

// Snapshot is an immutable view of the whole catalog at one point in time.
// Callers must not mutate the slices.
type Snapshot struct {
	Agent        AgentPersona      `json:"agent" yaml:"agent"`
	Courses      []Course          `json:"courses" yaml:"courses"`
	Pricing      []Pricing         `json:"pricing" yaml:"pricing"`
	PaymentLinks []PaymentLink     `json:"paymentLinks" yaml:"paymentLinks"`
	Professions  []Profession      `json:"professions" yaml:"professions"`
	Rules        []ProfessionRule  `json:"professionRules" yaml:"professionRules"`
	Countries    []Country         `json:"countries" yaml:"countries"`
	FAQs         []FAQ             `json:"faqs" yaml:"faqs"`
	Properties   []ContactProperty `json:"contactProperties" yaml:"contactProperties"`
	Stages       []Stage           `json:"pipeline" yaml:"pipeline"`
}

// Normalize sorts stages by order and courses by sort order, and fills the
// default persona. Loaders call it once before handing the snapshot out.
func (s *Snapshot) Normalize() {
	sort.SliceStable(s.Stages, func(i, j int) bool { return s.Stages[i].Order < s.Stages[j].Order })
	sort.SliceStable(s.Courses, func(i, j int) bool { return s.Courses[i].SortOrder < s.Courses[j].SortOrder })
	if s.Agent.Name == "" {
		s.Agent.Name = DefaultPersona.Name
	}
	if s.Agent.Tone == "" {
		s.Agent.Tone = DefaultPersona.Tone
	}
}

// StageByID resolves a stage reference.
func (s Snapshot) StageByID(id string) (Stage, bool) {
	for _, st := range s.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return Stage{}, false
}

// FirstStage returns the stage with the lowest order.
func (s Snapshot) FirstStage() (Stage, bool) {
	if len(s.Stages) == 0 {
		return Stage{}, false
	}
	first := s.Stages[0]
	for _, st := range s.Stages[1:] {
		if st.Order < first.Order {
			first = st
		}
	}
	return first, true
}

// NextStage returns the stage with the smallest order strictly greater than
// the given stage's order. ok is false when id is unknown or last.
func (s Snapshot) NextStage(id string) (Stage, bool) {
	current, ok := s.StageByID(id)
	if !ok {
		return Stage{}, false
	}
	var next Stage
	found := false
	for _, st := range s.Stages {
		if st.Order <= current.Order {
			continue
		}
		if !found || st.Order < next.Order {
			next = st
			found = true
		}
	}
	return next, found
}

// PropertyByKey resolves a field definition by key.
func (s Snapshot) PropertyByKey(key string) (ContactProperty, bool) {
	for _, p := range s.Properties {
		if p.Key == key {
			return p, true
		}
	}
	return ContactProperty{}, false
}

// ProfessionName looks up a profession's display name.
func (s Snapshot) ProfessionName(id string) (string, bool) {
	for _, p := range s.Professions {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

// ActiveCountries filters out disabled markets.
func (s Snapshot) ActiveCountries() []Country {
	out := make([]Country, 0, len(s.Countries))
	for _, c := range s.Countries {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

// ActivePaymentLinks filters out disabled links.
func (s Snapshot) ActivePaymentLinks() []PaymentLink {
	out := make([]PaymentLink, 0, len(s.PaymentLinks))
	for _, l := range s.PaymentLinks {
		if l.IsActive {
			out = append(out, l)
		}
	}
	return out
}
