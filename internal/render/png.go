// Package render draws dispatch results: charts as PNG images and whole
// categories as styled terminal text.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2"

	"oncostats/pkg/models"
)

// ErrUnsupportedKind is returned for chart kinds with no raster renderer.
// Clients draw those themselves from the chart spec and table.
var ErrUnsupportedKind = errors.New("render: no png renderer for chart kind")

const (
	DefaultWidth  = 960
	DefaultHeight = 540
	defaultBins   = 10
)

// Supported reports whether PNG can draw kind.
func Supported(kind models.ChartKind) bool {
	switch kind {
	case models.KindBar, models.KindLine, models.KindArea, models.KindScatter,
		models.KindPie, models.KindFunnel, models.KindFunnelArea, models.KindHistogram:
		return true
	}
	return false
}

// PNG draws spec over t into w. A chart with a melt step is drawn from the
// melted table.
func PNG(w io.Writer, spec models.ChartSpec, t *models.Table) error {
	if !Supported(spec.Kind) {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, spec.Kind)
	}
	if spec.Melt != nil {
		long, err := t.Melt(*spec.Melt)
		if err != nil {
			return err
		}
		t = long
	}

	var err error
	switch spec.Kind {
	case models.KindBar:
		err = renderBar(w, spec, t)
	case models.KindLine, models.KindArea, models.KindScatter:
		err = renderXY(w, spec, t)
	case models.KindPie:
		err = renderPie(w, spec, t)
	case models.KindFunnel:
		label, value := funnelAxes(spec, t)
		err = renderTotals(w, spec, t, label, value)
	case models.KindFunnelArea:
		err = renderTotals(w, spec, t, spec.Field(models.RoleNames), spec.Field(models.RoleValues))
	case models.KindHistogram:
		err = renderHistogram(w, spec, t)
	}
	if err != nil {
		return fmt.Errorf("render %q: %w", spec.Title, err)
	}
	return nil
}

// number parses a cell as float, accepting a trailing percent sign.
func number(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ordered keeps distinct strings in first-seen order.
type ordered struct {
	keys  []string
	index map[string]int
}

func (o *ordered) add(k string) int {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[k]; ok {
		return i
	}
	o.index[k] = len(o.keys)
	o.keys = append(o.keys, k)
	return len(o.keys) - 1
}

// grid sums value per (x, group) cell; group is "" when the chart has no
// color field.
type grid struct {
	xs, groups ordered
	sums       map[[2]int]float64
}

func sumBy(t *models.Table, xCol, groupCol, valueCol string) *grid {
	g := &grid{sums: make(map[[2]int]float64)}
	for row := range t.Rows {
		v, ok := number(t.Value(row, valueCol))
		if !ok {
			continue
		}
		xi := g.xs.add(t.Value(row, xCol))
		gi := g.groups.add(groupValue(t, row, groupCol))
		g.sums[[2]int{xi, gi}] += v
	}
	return g
}

func groupValue(t *models.Table, row int, col string) string {
	if col == "" {
		return ""
	}
	return t.Value(row, col)
}

func labelFor(x, group string) string {
	if group == "" {
		return x
	}
	return x + " " + group
}

func renderBar(w io.Writer, spec models.ChartSpec, t *models.Table) error {
	color := spec.Field(models.RoleColor)
	g := sumBy(t, spec.Field(models.RoleX), color, spec.Field(models.RoleY))
	if len(g.xs.keys) == 0 {
		return errors.New("no numeric values")
	}

	if color == "" || spec.Options.BarMode == "group" || spec.Options.BarMode == "overlay" {
		var bars []chart.Value
		for xi, x := range g.xs.keys {
			for gi, grp := range g.groups.keys {
				v, ok := g.sums[[2]int{xi, gi}]
				if !ok {
					continue
				}
				bars = append(bars, chart.Value{
					Label: barLabel(labelFor(x, grp), v, spec.Options.TextAuto),
					Value: v,
					Style: chart.Style{FillColor: chart.GetDefaultColor(gi), StrokeColor: chart.GetDefaultColor(gi)},
				})
			}
		}
		return barChart(spec.Title, bars).Render(chart.PNG, w)
	}

	sbc := chart.StackedBarChart{
		Title:      spec.Title,
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		BarSpacing: 40,
	}
	for xi, x := range g.xs.keys {
		bar := chart.StackedBar{Name: x}
		for gi, grp := range g.groups.keys {
			v, ok := g.sums[[2]int{xi, gi}]
			if !ok || v <= 0 {
				continue
			}
			bar.Values = append(bar.Values, chart.Value{
				Label: grp,
				Value: v,
				Style: chart.Style{FillColor: chart.GetDefaultColor(gi), StrokeColor: chart.GetDefaultColor(gi)},
			})
		}
		sbc.Bars = append(sbc.Bars, bar)
	}
	return sbc.Render(chart.PNG, w)
}

func barLabel(label string, v float64, withValue bool) string {
	if !withValue {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, strconv.FormatFloat(v, 'f', -1, 64))
}

// barChart anchors the y axis at zero so a single bar still has a range.
func barChart(title string, bars []chart.Value) chart.BarChart {
	top := 0.0
	for _, b := range bars {
		top = math.Max(top, b.Value)
	}
	if top == 0 {
		top = 1
	}
	return chart.BarChart{
		Title:    title,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		BarWidth: barWidth(len(bars)),
		YAxis:    chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1}},
		Bars:     bars,
	}
}

// padded widens a degenerate range so go-chart can scale it.
func padded(lo, hi float64) *chart.ContinuousRange {
	if lo != hi {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}

func barWidth(n int) int {
	if n == 0 {
		return 40
	}
	w := (DefaultWidth - 120) / (n * 2)
	return max(8, min(w, 80))
}

// renderXY draws one series per color group. A non-numeric x axis is laid
// out by first appearance with category ticks.
func renderXY(w io.Writer, spec models.ChartSpec, t *models.Table) error {
	xCol, yCol, color := spec.Field(models.RoleX), spec.Field(models.RoleY), spec.Field(models.RoleColor)

	numericX := true
	for row := range t.Rows {
		if _, ok := number(t.Value(row, xCol)); !ok {
			numericX = false
			break
		}
	}

	var xs, groups ordered
	xLo, xHi, yLo, yHi := math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)
	type points struct{ x, y []float64 }
	byGroup := map[int]*points{}
	for row := range t.Rows {
		y, ok := number(t.Value(row, yCol))
		if !ok {
			continue
		}
		var x float64
		if numericX {
			x, _ = number(t.Value(row, xCol))
		} else {
			x = float64(xs.add(t.Value(row, xCol)))
		}
		gi := groups.add(groupValue(t, row, color))
		p := byGroup[gi]
		if p == nil {
			p = &points{}
			byGroup[gi] = p
		}
		p.x = append(p.x, x)
		p.y = append(p.y, y)
		xLo, xHi = math.Min(xLo, x), math.Max(xHi, x)
		yLo, yHi = math.Min(yLo, y), math.Max(yHi, y)
	}
	if len(groups.keys) == 0 {
		return errors.New("no numeric values")
	}

	graph := chart.Chart{
		Title:  spec.Title,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		XAxis:  chart.XAxis{Name: xCol},
		YAxis:  chart.YAxis{Name: yCol},
	}
	if r := padded(xLo, xHi); r != nil {
		graph.XAxis.Range = r
	}
	if r := padded(yLo, yHi); r != nil {
		graph.YAxis.Range = r
	}
	if !numericX {
		for i, k := range xs.keys {
			graph.XAxis.Ticks = append(graph.XAxis.Ticks, chart.Tick{Value: float64(i), Label: k})
		}
	}
	for gi, name := range groups.keys {
		p := byGroup[gi]
		graph.Series = append(graph.Series, chart.ContinuousSeries{
			Name:    name,
			XValues: p.x,
			YValues: p.y,
			Style:   seriesStyle(spec, gi),
		})
	}
	if color != "" {
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	}
	return graph.Render(chart.PNG, w)
}

func seriesStyle(spec models.ChartSpec, i int) chart.Style {
	c := chart.GetDefaultColor(i)
	switch spec.Kind {
	case models.KindScatter:
		return chart.Style{StrokeWidth: chart.Disabled, DotWidth: 5, DotColor: c}
	case models.KindArea:
		return chart.Style{StrokeColor: c, FillColor: c.WithAlpha(64)}
	}
	st := chart.Style{StrokeColor: c, StrokeWidth: 2}
	if spec.Options.Markers {
		st.DotWidth = 4
		st.DotColor = c
	}
	return st
}

func totals(t *models.Table, labelCol, valueCol string) []chart.Value {
	g := sumBy(t, labelCol, "", valueCol)
	out := make([]chart.Value, 0, len(g.xs.keys))
	for xi, x := range g.xs.keys {
		out = append(out, chart.Value{Label: x, Value: g.sums[[2]int{xi, 0}]})
	}
	return out
}

func renderPie(w io.Writer, spec models.ChartSpec, t *models.Table) error {
	values := totals(t, spec.Field(models.RoleNames), spec.Field(models.RoleValues))
	if len(values) == 0 {
		return errors.New("no numeric values")
	}
	if spec.Options.Hole != nil && *spec.Options.Hole > 0 {
		donut := chart.DonutChart{Title: spec.Title, Width: DefaultHeight, Height: DefaultHeight, Values: values}
		return donut.Render(chart.PNG, w)
	}
	pie := chart.PieChart{Title: spec.Title, Width: DefaultHeight, Height: DefaultHeight, Values: values}
	return pie.Render(chart.PNG, w)
}

// funnelAxes picks the stage and value columns of a funnel: the value axis
// is whichever of x and y holds numbers.
func funnelAxes(spec models.ChartSpec, t *models.Table) (label, value string) {
	x, y := spec.Field(models.RoleX), spec.Field(models.RoleY)
	for row := range t.Rows {
		if _, ok := number(t.Value(row, x)); !ok {
			return x, y
		}
	}
	return y, x
}

// renderTotals draws per-label totals as bars, largest first.
func renderTotals(w io.Writer, spec models.ChartSpec, t *models.Table, labelCol, valueCol string) error {
	values := totals(t, labelCol, valueCol)
	if len(values) == 0 {
		return errors.New("no numeric values")
	}
	sort.SliceStable(values, func(i, j int) bool { return values[i].Value > values[j].Value })
	for i := range values {
		values[i].Style = chart.Style{FillColor: chart.GetDefaultColor(i), StrokeColor: chart.GetDefaultColor(i)}
	}
	return barChart(spec.Title, values).Render(chart.PNG, w)
}

// renderHistogram counts rows per bin of a numeric x column, or per distinct
// value when x is not numeric. Color groups stack within a bin.
func renderHistogram(w io.Writer, spec models.ChartSpec, t *models.Table) error {
	xCol, color := spec.Field(models.RoleX), spec.Field(models.RoleColor)
	nbins := spec.Options.NBins
	if nbins <= 0 {
		nbins = defaultBins
	}

	binOf, labels, ok := numericBins(t, xCol, nbins)
	if !ok {
		var cats ordered
		for row := range t.Rows {
			cats.add(t.Value(row, xCol))
		}
		labels = cats.keys
		binOf = func(row int) (int, bool) { return cats.index[t.Value(row, xCol)], true }
	}

	var groups ordered
	counts := map[[2]int]float64{}
	for row := range t.Rows {
		b, ok := binOf(row)
		if !ok {
			continue
		}
		counts[[2]int{b, groups.add(groupValue(t, row, color))}]++
	}
	if len(groups.keys) == 0 {
		return errors.New("no values")
	}

	// empty bins are left out; go-chart cannot scale a zero-height stack
	if color == "" {
		var bars []chart.Value
		for i, l := range labels {
			if n := counts[[2]int{i, 0}]; n > 0 {
				bars = append(bars, chart.Value{Label: barLabel(l, n, spec.Options.TextAuto), Value: n})
			}
		}
		return barChart(spec.Title, bars).Render(chart.PNG, w)
	}

	sbc := chart.StackedBarChart{Title: spec.Title, Width: DefaultWidth, Height: DefaultHeight, BarSpacing: 20}
	for i, l := range labels {
		bar := chart.StackedBar{Name: l}
		for gi, grp := range groups.keys {
			if n := counts[[2]int{i, gi}]; n > 0 {
				bar.Values = append(bar.Values, chart.Value{
					Label: grp,
					Value: n,
					Style: chart.Style{FillColor: chart.GetDefaultColor(gi), StrokeColor: chart.GetDefaultColor(gi)},
				})
			}
		}
		if len(bar.Values) > 0 {
			sbc.Bars = append(sbc.Bars, bar)
		}
	}
	return sbc.Render(chart.PNG, w)
}

// numericBins splits the range of a fully numeric column into n equal bins.
func numericBins(t *models.Table, col string, n int) (func(int) (int, bool), []string, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for row := range t.Rows {
		v, ok := number(t.Value(row, col))
		if !ok {
			return nil, nil, false
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if len(t.Rows) == 0 {
		return nil, nil, false
	}
	if hi == lo {
		n = 1
	}
	width := (hi - lo) / float64(n)

	labels := make([]string, n)
	for i := range labels {
		a := lo + float64(i)*width
		labels[i] = fmt.Sprintf("%s-%s", strconv.FormatFloat(a, 'f', 1, 64), strconv.FormatFloat(a+width, 'f', 1, 64))
	}
	binOf := func(row int) (int, bool) {
		v, _ := number(t.Value(row, col))
		if width == 0 {
			return 0, true
		}
		return min(int((v-lo)/width), n-1), true
	}
	return binOf, labels, true
}
