package explain

import (
	"context"
	"fmt"
	"strings"

	"icdlookup/internal"
)

type Audience string

const (
	AudiencePatient   Audience = "patient"
	AudienceClinician Audience = "clinician"
)

type Source string

const (
	SourceAI       Source = "ai"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

type Explanation struct {
	Code     string   `json:"code"`
	Audience Audience `json:"audience"`
	Text     string   `json:"text"`
	Source   Source   `json:"source"`
}

// ParseAudience maps user input to an audience. Empty input means patient.
func ParseAudience(value string) (Audience, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "patient", "plain":
		return AudiencePatient, nil
	case "clinician", "doctor", "clinical":
		return AudienceClinician, nil
	default:
		return "", fmt.Errorf("unknown audience %q", value)
	}
}

// Completer produces text for a prompt. *Client implements it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Store caches explanations per code and audience. *storage.DB implements it.
type Store interface {
	GetExplanation(code, audience string) (*string, error)
	PutExplanation(code, audience, model, text string) error
}

type Explainer struct {
	completer Completer
	store     Store
	// OnError, when set, receives failures that were replaced by the fallback text.
	OnError func(code string, err error)
}

// NewExplainer wires a completer and an optional store. Either may be nil.
func NewExplainer(completer Completer, store Store) *Explainer {
	return &Explainer{completer: completer, store: store}
}

// Explain never fails: cache hits are returned as is, completer errors degrade to a
// static text built from the record.
func (e *Explainer) Explain(ctx context.Context, rec internal.CanonicalRecord, audience Audience) Explanation {
	out := Explanation{Code: rec.Code, Audience: audience}

	if e.store != nil {
		if cached, err := e.store.GetExplanation(rec.Code, string(audience)); err == nil && cached != nil {
			out.Text = *cached
			out.Source = SourceCache
			return out
		}
	}

	if e.completer != nil {
		text, err := e.completer.Complete(ctx, systemPrompt(audience), userPrompt(rec))
		if err == nil {
			if e.store != nil {
				if err := e.store.PutExplanation(rec.Code, string(audience), e.completer.Model(), text); err != nil {
					e.report(rec.Code, err)
				}
			}
			out.Text = text
			out.Source = SourceAI
			return out
		}
		e.report(rec.Code, err)
	}

	out.Text = Fallback(rec, audience)
	out.Source = SourceFallback
	return out
}

func (e *Explainer) report(code string, err error) {
	if e.OnError != nil {
		e.OnError(code, err)
	}
}

// Fallback is the static explanation used when no completion is available.
func Fallback(rec internal.CanonicalRecord, audience Audience) string {
	desc := rec.Description()
	if desc == "" {
		desc = "no description available"
	}
	if audience == AudienceClinician {
		return fmt.Sprintf("%s: %s. Category %s, chapter %s.", rec.Code, desc, rec.Category, rec.Chapter)
	}
	return fmt.Sprintf("Code %s means: %s. It belongs to the group \"%s\". Ask your doctor what this means for you.", rec.Code, desc, rec.Chapter)
}

func systemPrompt(audience Audience) string {
	if audience == AudienceClinician {
		return "You are a clinical coding assistant. Explain ICD-10-CM codes concisely for clinicians: " +
			"typical documentation requirements, common related codes and coding pitfalls. Do not give treatment advice."
	}
	return "You explain ICD-10-CM diagnosis codes to patients in plain language, in at most five short sentences. " +
		"Do not give medical advice; suggest talking to a doctor for questions about their care."
}

func userPrompt(rec internal.CanonicalRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code: %s\n", rec.Code)
	fmt.Fprintf(&b, "Short description: %s\n", rec.ShortDescription)
	if rec.LongDescription != "" && rec.LongDescription != rec.ShortDescription {
		fmt.Fprintf(&b, "Long description: %s\n", rec.LongDescription)
	}
	if rec.Chapter != "" {
		fmt.Fprintf(&b, "Chapter: %s\n", rec.Chapter)
	}
	return b.String()
}
