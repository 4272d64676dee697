package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette is reused cyclically: bar and line charts colour by series, pie
// charts by category.
var Palette = []lipgloss.Color{
	"#6366F1", // indigo
	"#10B981", // emerald
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
}

func paletteColor(i int) lipgloss.Color {
	return Palette[i%len(Palette)]
}

// Trace is one drawable series with a colour per value.
type Trace struct {
	Name   string
	Values []float64
	Colors []lipgloss.Color
}

// Project maps a payload to drawable traces.
func Project(p *Payload) []Trace {
	traces := make([]Trace, len(p.Datasets))
	for i, ds := range p.Datasets {
		colors := make([]lipgloss.Color, len(ds.Data))
		for j := range ds.Data {
			if p.Type == TypePie {
				colors[j] = paletteColor(j)
			} else {
				colors[j] = paletteColor(i)
			}
		}
		traces[i] = Trace{Name: ds.Name, Values: ds.Data, Colors: colors}
	}
	return traces
}

const minWidth = 24

var (
	chartTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA"))

	axisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// Render draws a validated payload as terminal text no wider than width.
func Render(p *Payload, width int) string {
	if width < minWidth {
		width = minWidth
	}
	traces := Project(p)

	var b strings.Builder
	b.WriteString(chartTitleStyle.Render(p.Title))
	b.WriteString("\n\n")

	switch p.Type {
	case TypeBar:
		renderBar(&b, p.Labels, traces, width)
	case TypeLine:
		renderLine(&b, p.Labels, traces, width)
	case TypePie:
		renderPie(&b, p.Labels, traces, width)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderBar(b *strings.Builder, labels []string, traces []Trace, width int) {
	labelW := labelWidth(labels, width/3)
	valueW := 0
	peak := 0.0
	for _, t := range traces {
		for _, v := range t.Values {
			valueW = max(valueW, len(formatValue(v)))
			peak = max(peak, v)
		}
	}
	barMax := max(width-labelW-valueW-3, 4)

	for j, label := range labels {
		for i, t := range traces {
			prefix := strings.Repeat(" ", labelW)
			if i == 0 {
				prefix = padRight(truncate(label, labelW), labelW)
			}
			v := t.Values[j]
			n := scale(v, peak, barMax)
			bar := lipgloss.NewStyle().Foreground(t.Colors[j]).Render(strings.Repeat("█", n))
			fmt.Fprintf(b, "%s %s %s\n", prefix, bar, formatValue(v))
		}
	}
	if len(traces) > 1 {
		b.WriteString("\n")
		b.WriteString(seriesLegend(traces))
		b.WriteString("\n")
	}
}

var sparks = []rune("▁▂▃▄▅▆▇█")

func renderLine(b *strings.Builder, labels []string, traces []Trace, width int) {
	nameW := 0
	for _, t := range traces {
		nameW = max(nameW, lipgloss.Width(t.Name))
	}
	nameW = min(nameW, width/3)

	// Stretch each point over several cells when the terminal allows it.
	cell := max(1, min(4, (width-nameW-1)/max(1, len(labels))))

	for _, t := range traces {
		lo, hi := bounds(t.Values)
		var line strings.Builder
		for _, v := range t.Values {
			idx := 0
			if hi > lo {
				idx = int(math.Round((v - lo) / (hi - lo) * float64(len(sparks)-1)))
			}
			line.WriteString(strings.Repeat(string(sparks[idx]), cell))
		}
		style := lipgloss.NewStyle().Foreground(t.Colors[0])
		fmt.Fprintf(b, "%s %s\n", padRight(truncate(t.Name, nameW), nameW), style.Render(line.String()))
		fmt.Fprintf(b, "%s %s\n", strings.Repeat(" ", nameW),
			axisStyle.Render(fmt.Sprintf("min %s  max %s", formatValue(lo), formatValue(hi))))
	}
	fmt.Fprintf(b, "%s %s\n", strings.Repeat(" ", nameW),
		axisStyle.Render(fmt.Sprintf("%s → %s", labels[0], labels[len(labels)-1])))
}

func renderPie(b *strings.Builder, labels []string, traces []Trace, width int) {
	stripW := width - 2
	for i, t := range traces {
		if len(traces) > 1 {
			b.WriteString(t.Name)
			b.WriteString("\n")
		}
		total := 0.0
		for _, v := range t.Values {
			total += math.Max(v, 0)
		}
		if total == 0 {
			b.WriteString(axisStyle.Render("(no positive values)"))
			b.WriteString("\n")
			continue
		}

		cells := apportion(t.Values, total, stripW)
		for j, n := range cells {
			b.WriteString(lipgloss.NewStyle().Foreground(t.Colors[j]).Render(strings.Repeat("█", n)))
		}
		b.WriteString("\n")
		for j, label := range labels {
			pct := math.Max(t.Values[j], 0) / total * 100
			swatch := lipgloss.NewStyle().Foreground(t.Colors[j]).Render("■")
			fmt.Fprintf(b, "%s %s %.1f%%\n", swatch, label, pct)
		}
		if i < len(traces)-1 {
			b.WriteString("\n")
		}
	}
}

// apportion splits width cells across values by the largest remainder
// method so the strip is always exactly width cells long.
func apportion(values []float64, total float64, width int) []int {
	cells := make([]int, len(values))
	rems := make([]float64, len(values))
	used := 0
	for i, v := range values {
		exact := math.Max(v, 0) / total * float64(width)
		cells[i] = int(exact)
		rems[i] = exact - float64(cells[i])
		used += cells[i]
	}
	for ; used < width; used++ {
		best := 0
		for i := range rems {
			if rems[i] > rems[best] {
				best = i
			}
		}
		cells[best]++
		rems[best] = -1
	}
	return cells
}

func seriesLegend(traces []Trace) string {
	parts := make([]string, len(traces))
	for i, t := range traces {
		parts[i] = lipgloss.NewStyle().Foreground(t.Colors[0]).Render("■") + " " + t.Name
	}
	return strings.Join(parts, "  ")
}

func scale(v, peak float64, width int) int {
	if v <= 0 || peak <= 0 {
		return 0
	}
	n := int(math.Round(v / peak * float64(width)))
	return max(n, 1)
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func labelWidth(labels []string, limit int) int {
	w := 0
	for _, l := range labels {
		w = max(w, lipgloss.Width(l))
	}
	return max(1, min(w, limit))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func padRight(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}
