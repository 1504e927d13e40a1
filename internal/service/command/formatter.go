package command

import (
	"fmt"
	"strings"

	"github.com/sandevgo/tuskmem/internal/service/ui"
)

type ResponseFormatter struct{}

func NewResponseFormatter() *ResponseFormatter {
	return &ResponseFormatter{}
}

func (f *ResponseFormatter) Info(title string) string {
	return ui.TitleStyle.Render(title) + "\n"
}

func (f *ResponseFormatter) Success(message string) string {
	return ui.UsageStyle.Render("✓ "+message) + "\n"
}

func (f *ResponseFormatter) Error(err error) string {
	return ui.ErrorStyle.Render("error: ") + err.Error() + "\n"
}

func (f *ResponseFormatter) Label(label, value string) string {
	return fmt.Sprintf("%s  ›  %s\n", ui.FlagStyle.Render(label), value)
}

func (f *ResponseFormatter) Usage(command string) string {
	return fmt.Sprintf("%s %s\n", ui.TitleStyle.Render("usage:"), ui.UsageStyle.Render(command))
}

func (f *ResponseFormatter) Examples(examples []string) string {
	var sb strings.Builder
	sb.WriteString(ui.TitleStyle.Render("examples:") + "\n")
	for _, ex := range examples {
		sb.WriteString("  " + ui.UsageStyle.Render(ex) + "\n")
	}
	return sb.String()
}

func (f *ResponseFormatter) List(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("› %s\n", item))
	}
	return sb.String()
}

func (f *ResponseFormatter) Tip(text string) string {
	return ui.DescStyle.Render("tip: "+text) + "\n"
}

func (f *ResponseFormatter) Combine(sections ...string) string {
	return strings.TrimRight(strings.Join(sections, ""), "\n")
}

// oneLine collapses whitespace and cuts s to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
