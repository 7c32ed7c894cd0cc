// Package observability provides structured logging and the formatted
// output used by the CLI's verbose mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/reply-drafter/internal/compiler"
	"github.com/jonathan/reply-drafter/internal/enforcement"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/jonathan/reply-drafter/internal/voice"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 8
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, inner))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to exactly width runes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		runes := []rune(s)
		return string(runes[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

// PrintCuratedSet outputs the scored candidates and the selected samples.
func (p *Printer) PrintCuratedSet(set voice.CuratedSet) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Selected: %d of %d candidates (cost %d)\n", len(set.Samples), len(set.Candidates), set.TotalCost))
	sb.WriteString("\n")

	selected := make(map[string]bool, len(set.SampleIDs))
	for _, id := range set.SampleIDs {
		selected[id.String()] = true
	}

	count := min(len(set.Candidates), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := set.Candidates[i]
		mark := " "
		if selected[c.ID.String()] {
			mark = "✓"
		}
		sb.WriteString(fmt.Sprintf("%s %.3f  %s\n", mark, c.Score, c.CleanedText))
	}
	if len(set.Candidates) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(set.Candidates)-maxItemsToShow))
	}

	p.printBox("CURATED VOICE SET", sb.String())
}

// PrintCompiledRequest outputs the compiled generation request.
func (p *Printer) PrintCompiledRequest(req compiler.Request) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Prompt version:  %s\n", req.PromptVersion))
	sb.WriteString(fmt.Sprintf("Banned list:     %s\n", req.BannedListVersion))
	sb.WriteString(fmt.Sprintf("Language:        %s\n", req.LanguageTag))
	sb.WriteString(fmt.Sprintf("Tone:            %s\n", req.Tone))
	sb.WriteString(fmt.Sprintf("Sentence budget: %d\n", req.SentenceBudget))

	p.printBox("COMPILED REQUEST", sb.String())
	fmt.Fprintln(p.out, req.Text()) //nolint:errcheck // writing to stdout
}

// PrintTrace outputs the text after every enforcement stage.
func (p *Printer) PrintTrace(steps []enforcement.Step, result enforcement.Result) {
	var sb strings.Builder

	prev := ""
	for i, step := range steps {
		status := "unchanged"
		if i == 0 || step.Text != prev {
			status = "changed"
		}
		sb.WriteString(fmt.Sprintf("%2d. %-20s %s\n", i+1, step.Stage, status))
		prev = step.Text
	}
	d := result.Diagnostics
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Excuses removed:   %d\n", d.ExcusesRemoved))
	sb.WriteString(fmt.Sprintf("Apologies removed: %d\n", d.ApologiesRemoved))
	sb.WriteString(fmt.Sprintf("Closers stripped:  %t\n", d.ClosersStripped))
	if len(d.BannedPhraseResidual) > 0 {
		sb.WriteString(fmt.Sprintf("Banned residual:   %s\n", strings.Join(d.BannedPhraseResidual, "; ")))
	}

	p.printBox("ENFORCEMENT TRACE", sb.String())
}

// PrintDraft outputs a finished draft and its audit fields.
func (p *Printer) PrintDraft(reply *types.DraftReply) {
	if reply == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Owner language:  %s\n", reply.Meta.OwnerLanguageTag))
	sb.WriteString(fmt.Sprintf("Tone label:      %s\n", reply.Meta.ReplyToneLabel))
	sb.WriteString(fmt.Sprintf("Samples used:    %d\n", reply.SampleCount))
	sb.WriteString(fmt.Sprintf("Enforcement:     %s\n", reply.EnforcementVersion))
	sb.WriteString(fmt.Sprintf("Fingerprint:     %s\n", reply.PromptFingerprint))

	p.printBox("DRAFT", sb.String())
}
