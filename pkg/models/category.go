package models

// Section names one of the educational text panels shown for a category.
type Section string

const (
	SectionSymptoms   Section = "Symptoms"
	SectionEffects    Section = "Effects"
	SectionCauses     Section = "Causes"
	SectionTreatments Section = "Treatments"
)

// Sections is the canonical display order of the text panels.
var Sections = []Section{SectionSymptoms, SectionEffects, SectionCauses, SectionTreatments}

// TextPayload is free-form descriptive text per section. It is never parsed.
type TextPayload map[Section]string

// CategoryEntry is one cancer type: where its data lives, the charts drawn
// from it and the text shown next to them.
type CategoryEntry struct {
	ID          string      `yaml:"id" json:"id"`
	Source      string      `yaml:"source" json:"source"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Charts      []ChartSpec `yaml:"charts" json:"charts"`
	Text        TextPayload `yaml:"text" json:"text"`
}

// Clone returns a copy that shares no slices or maps with e.
func (e CategoryEntry) Clone() CategoryEntry {
	out := e
	out.Charts = make([]ChartSpec, len(e.Charts))
	for i, c := range e.Charts {
		out.Charts[i] = c.Clone()
	}
	out.Text = make(TextPayload, len(e.Text))
	for k, v := range e.Text {
		out.Text[k] = v
	}
	return out
}

// Clone returns a deep copy of the chart spec.
func (c ChartSpec) Clone() ChartSpec {
	out := c
	out.Fields = make(map[Role][]string, len(c.Fields))
	for r, cols := range c.Fields {
		out.Fields[r] = append([]string(nil), cols...)
	}
	if c.Options.Hole != nil {
		h := *c.Options.Hole
		out.Options.Hole = &h
	}
	if c.Melt != nil {
		m := *c.Melt
		m.IDVars = append([]string(nil), c.Melt.IDVars...)
		m.ValueVars = append([]string(nil), c.Melt.ValueVars...)
		out.Melt = &m
	}
	return out
}

// Overview is the application-level header content shown above every
// category.
type Overview struct {
	Title   string `yaml:"title" json:"title"`
	About   string `yaml:"about" json:"about"`
	Purpose string `yaml:"purpose" json:"purpose"`
	Image   string `yaml:"image,omitempty" json:"image,omitempty"`
}
