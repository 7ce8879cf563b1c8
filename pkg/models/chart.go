package models

import "fmt"

// ChartKind names one visualization family understood by the renderers.
type ChartKind string

const (
	KindBar            ChartKind = "bar"
	KindLine           ChartKind = "line"
	KindArea           ChartKind = "area"
	KindPie            ChartKind = "pie"
	KindViolin         ChartKind = "violin"
	KindHistogram      ChartKind = "histogram"
	KindTreemap        ChartKind = "treemap"
	KindFunnel         ChartKind = "funnel"
	KindBox            ChartKind = "box"
	KindScatter        ChartKind = "scatter"
	KindScatter3D      ChartKind = "scatter_3d"
	KindDensityHeatmap ChartKind = "density_heatmap"
	KindSunburst       ChartKind = "sunburst"
	KindBarPolar       ChartKind = "bar_polar"
	KindFunnelArea     ChartKind = "funnel_area"
	KindLinePolar      ChartKind = "line_polar"
)

// Role is the position a column plays inside a chart.
type Role string

const (
	RoleX         Role = "x"
	RoleY         Role = "y"
	RoleZ         Role = "z"
	RoleColor     Role = "color"
	RoleSize      Role = "size"
	RoleNames     Role = "names"
	RoleValues    Role = "values"
	RolePath      Role = "path"
	RoleTheta     Role = "theta"
	RoleR         Role = "r"
	RoleHoverName Role = "hover_name"
	RoleSymbol    Role = "symbol"
)

// RoleOrder is the order in which chart fields are walked when they are
// validated or listed.
var RoleOrder = []Role{
	RoleX, RoleY, RoleZ, RoleNames, RoleValues, RolePath, RoleTheta, RoleR,
	RoleColor, RoleSize, RoleSymbol, RoleHoverName,
}

var requiredRoles = map[ChartKind][]Role{
	KindBar:            {RoleX, RoleY},
	KindLine:           {RoleX, RoleY},
	KindArea:           {RoleX, RoleY},
	KindViolin:         {RoleX, RoleY},
	KindBox:            {RoleX, RoleY},
	KindFunnel:         {RoleX, RoleY},
	KindDensityHeatmap: {RoleX, RoleY},
	KindHistogram:      {RoleX},
	KindPie:            {RoleNames, RoleValues},
	KindFunnelArea:     {RoleNames, RoleValues},
	KindTreemap:        {RolePath, RoleValues},
	KindSunburst:       {RolePath, RoleValues},
	KindScatter:        {RoleX, RoleY},
	KindScatter3D:      {RoleX, RoleY, RoleZ},
	KindBarPolar:       {RoleR, RoleTheta},
	KindLinePolar:      {RoleR, RoleTheta},
}

// Valid reports whether k is one of the known chart kinds.
func (k ChartKind) Valid() bool {
	_, ok := requiredRoles[k]
	return ok
}

// RequiredRoles returns the roles a chart of kind k cannot be drawn without.
func (k ChartKind) RequiredRoles() []Role {
	return append([]Role(nil), requiredRoles[k]...)
}

// ChartOptions holds the per-kind knobs. Zero values mean "renderer default".
type ChartOptions struct {
	BarMode              string   `yaml:"barmode,omitempty" json:"barmode,omitempty"`
	Points               string   `yaml:"points,omitempty" json:"points,omitempty"`
	Hole                 *float64 `yaml:"hole,omitempty" json:"hole,omitempty"`
	Box                  bool     `yaml:"box,omitempty" json:"box,omitempty"`
	Markers              bool     `yaml:"markers,omitempty" json:"markers,omitempty"`
	TextAuto             bool     `yaml:"text_auto,omitempty" json:"text_auto,omitempty"`
	NBins                int      `yaml:"nbins,omitempty" json:"nbins,omitempty"`
	LineClose            bool     `yaml:"line_close,omitempty" json:"line_close,omitempty"`
	ColorContinuousScale string   `yaml:"color_continuous_scale,omitempty" json:"color_continuous_scale,omitempty"`
}

// MeltSpec turns the wide normalized table into a long one before drawing:
// every value column becomes one (VarName, ValueName) row per input row.
type MeltSpec struct {
	IDVars    []string `yaml:"id_vars" json:"id_vars"`
	ValueVars []string `yaml:"value_vars" json:"value_vars"`
	VarName   string   `yaml:"var_name" json:"var_name"`
	ValueName string   `yaml:"value_name" json:"value_name"`
}

// ChartSpec is an engine-independent description of one visualization.
type ChartSpec struct {
	Kind    ChartKind         `yaml:"kind" json:"kind"`
	Title   string            `yaml:"title" json:"title"`
	Fields  map[Role][]string `yaml:"fields" json:"fields"`
	Options ChartOptions      `yaml:"options,omitempty" json:"options"`
	Melt    *MeltSpec         `yaml:"melt,omitempty" json:"melt,omitempty"`
}

// Field returns the single column bound to role, or "" when unbound.
func (c ChartSpec) Field(role Role) string {
	if cols := c.Fields[role]; len(cols) > 0 {
		return cols[0]
	}
	return ""
}

// Columns lists every column the chart reads, in role order, without
// duplicates.
func (c ChartSpec) Columns() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, role := range RoleOrder {
		for _, col := range c.Fields[role] {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			out = append(out, col)
		}
	}
	return out
}

// Validate checks the spec against its kind: known kind, required roles
// present, single-column roles carrying one column and options that apply.
func (c ChartSpec) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("chart %q: unknown kind %q", c.Title, c.Kind)
	}
	if c.Title == "" {
		return fmt.Errorf("%s chart: title required", c.Kind)
	}
	for _, role := range c.Kind.RequiredRoles() {
		if len(c.Fields[role]) == 0 {
			return fmt.Errorf("chart %q: %s requires role %q", c.Title, c.Kind, role)
		}
	}
	for role, cols := range c.Fields {
		if !knownRole(role) {
			return fmt.Errorf("chart %q: unknown role %q", c.Title, role)
		}
		if role != RolePath && len(cols) > 1 {
			return fmt.Errorf("chart %q: role %q takes one column, got %d", c.Title, role, len(cols))
		}
		for _, col := range cols {
			if col == "" {
				return fmt.Errorf("chart %q: empty column for role %q", c.Title, role)
			}
		}
	}
	if c.Melt != nil {
		if len(c.Melt.ValueVars) == 0 || c.Melt.VarName == "" || c.Melt.ValueName == "" {
			return fmt.Errorf("chart %q: melt needs value_vars, var_name and value_name", c.Title)
		}
		if c.Melt.VarName == c.Melt.ValueName {
			return fmt.Errorf("chart %q: melt var_name and value_name are both %q", c.Title, c.Melt.VarName)
		}
		for _, id := range c.Melt.IDVars {
			if id == c.Melt.VarName || id == c.Melt.ValueName {
				return fmt.Errorf("chart %q: melt output column %q collides with id column", c.Title, id)
			}
		}
	}
	return c.validateOptions()
}

func (c ChartSpec) validateOptions() error {
	o := c.Options
	bad := func(name string) error {
		return fmt.Errorf("chart %q: option %s does not apply to %s", c.Title, name, c.Kind)
	}

	if o.BarMode != "" {
		if c.Kind != KindBar && c.Kind != KindHistogram && c.Kind != KindBarPolar {
			return bad("barmode")
		}
		switch o.BarMode {
		case "group", "overlay", "stack", "relative":
		default:
			return fmt.Errorf("chart %q: invalid barmode %q", c.Title, o.BarMode)
		}
	}
	if o.Points != "" {
		if c.Kind != KindBox && c.Kind != KindViolin {
			return bad("points")
		}
		switch o.Points {
		case "all", "outliers", "suspectedoutliers", "false":
		default:
			return fmt.Errorf("chart %q: invalid points %q", c.Title, o.Points)
		}
	}
	if o.Hole != nil {
		if c.Kind != KindPie {
			return bad("hole")
		}
		if *o.Hole < 0 || *o.Hole >= 1 {
			return fmt.Errorf("chart %q: hole must be in [0,1), got %v", c.Title, *o.Hole)
		}
	}
	if o.Box && c.Kind != KindViolin {
		return bad("box")
	}
	if o.Markers && c.Kind != KindLine && c.Kind != KindLinePolar {
		return bad("markers")
	}
	if o.TextAuto && c.Kind != KindBar && c.Kind != KindHistogram {
		return bad("text_auto")
	}
	if o.NBins != 0 {
		if c.Kind != KindHistogram && c.Kind != KindDensityHeatmap {
			return bad("nbins")
		}
		if o.NBins < 0 {
			return fmt.Errorf("chart %q: nbins must be positive", c.Title)
		}
	}
	if o.LineClose && c.Kind != KindLinePolar {
		return bad("line_close")
	}
	if o.ColorContinuousScale != "" && c.Kind != KindDensityHeatmap {
		return bad("color_continuous_scale")
	}
	return nil
}

func knownRole(r Role) bool {
	for _, known := range RoleOrder {
		if r == known {
			return true
		}
	}
	return false
}
