// Package enforcement repairs and constrains generated reply text. A Pipeline
// is an ordered list of pure text stages folded left to right; running it on
// its own output leaves the text unchanged.
package enforcement

import (
	"strings"

	"github.com/jonathan/reply-drafter/internal/compiler"
	"github.com/jonathan/reply-drafter/internal/policy"
)

// Input carries the request context the stages read.
type Input struct {
	Rating     int
	ReviewText string
	// SentenceBudget is the budget returned by the compiler. Zero or less
	// recomputes it from ReviewText.
	SentenceBudget   int
	AllowExclamation bool
	Signature        *string
}

// Diagnostics records what the stages did. They never affect the text.
type Diagnostics struct {
	ClosersStripped      bool     `json:"closers_stripped"`
	ExcusesRemoved       int      `json:"excuses_removed"`
	ApologiesRemoved     int      `json:"apologies_removed"`
	BannedPhraseResidual []string `json:"banned_phrase_residual,omitempty"`
}

// Result is the enforced text plus diagnostics.
type Result struct {
	Text        string      `json:"text"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// StageFunc transforms text for one stage.
type StageFunc func(text string, in Input, diag *Diagnostics) string

// Stage is a named StageFunc.
type Stage struct {
	Name  string
	Apply StageFunc
}

// Step is the output of one stage in a trace.
type Step struct {
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

// Pipeline applies the enforcement stages in order.
type Pipeline struct {
	policy *policy.Policy
	stages []Stage
}

// New builds the standard pipeline over p.
func New(p *policy.Policy) *Pipeline {
	if p == nil {
		p = policy.Default()
	}
	pl := &Pipeline{policy: p}
	pl.stages = []Stage{
		{"normalize", pl.normalize},
		{"strip-openers", pl.stripOpeners},
		{"sanitize-corporate", pl.sanitizeCorporate},
		{"drop-banned-phrases", pl.dropBannedPhrases},
		{"repair-elisions", pl.repairElisions},
		{"capitalize", capitalize},
		{"remove-excuses", pl.removeExcuses},
		{"dedupe-apologies", pl.dedupeApologies},
		{"strip-closers", pl.stripClosers},
		{"sentence-budget", limitToBudget},
		{"exclamations", enforceExclamations},
		{"signature", appendSignature},
	}
	return pl
}

// Version returns the enforcement version tag recorded on drafts.
func (p *Pipeline) Version() string {
	return p.policy.EnforcementVersion()
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run applies every stage to raw. An empty Result.Text means the draft did
// not survive enforcement and must be treated as a generation failure.
func (p *Pipeline) Run(raw string, in Input) Result {
	var diag Diagnostics
	text := raw
	for _, s := range p.stages {
		text = s.Apply(text, in, &diag)
	}
	return Result{Text: strings.TrimSpace(text), Diagnostics: diag}
}

// RunTrace is Run plus the text after every stage.
func (p *Pipeline) RunTrace(raw string, in Input) (Result, []Step) {
	var diag Diagnostics
	steps := make([]Step, 0, len(p.stages))
	text := raw
	for _, s := range p.stages {
		text = s.Apply(text, in, &diag)
		steps = append(steps, Step{Stage: s.Name, Text: text})
	}
	return Result{Text: strings.TrimSpace(text), Diagnostics: diag}, steps
}

// signature returns the configured signature without any leading dash, since
// the dash is added when the line is appended.
func (in Input) signature() string {
	if in.Signature == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(*in.Signature), "—–-"))
}

func (in Input) budget() int {
	if in.SentenceBudget > 0 {
		return in.SentenceBudget
	}
	return compiler.SentenceBudget(in.ReviewText)
}
