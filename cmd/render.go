package cmd

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	outputStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	sectionStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// titleKey turns an output key such as "final_summary" into "Final Summary"
func titleKey(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// renderValues renders every value of a result, the output key last
func renderValues(values map[string]string, outputKey string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != outputKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sections []string
	for _, k := range keys {
		sections = append(sections, keyStyle.Render(titleKey(k))+"\n"+values[k])
	}
	if v, ok := values[outputKey]; ok {
		sections = append(sections, outputStyle.Render(titleKey(outputKey))+"\n"+v)
	}
	return sectionStyle.Render(strings.Join(sections, "\n\n"))
}
