package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/ncbimcp/ncbimcp/internal/core"
	apperrors "github.com/ncbimcp/ncbimcp/internal/errors"
)

const separator = "--------------------------------------------------"

// Presentation is the client-facing rendering of one tool invocation.
type Presentation struct {
	Kind     core.ResultKind
	Text     string
	Envelope *gferrors.ErrorEnvelope
	// Partial holds records retrieved before a composite run failed.
	Partial string
}

// IsError reports whether the invocation should be flagged as failed.
func (p Presentation) IsError() bool {
	return p.Envelope != nil
}

// ErrorJSON renders the envelope as the {code, message, details} body.
func (p Presentation) ErrorJSON() string {
	if p.Envelope == nil {
		return ""
	}
	data, err := json.MarshalIndent(apperrors.Detail(p.Envelope), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"code":%q,"message":%q}`, p.Envelope.Code, p.Envelope.Message)
	}
	return string(data)
}

// Present renders a dispatcher result for a client.
func Present(ctx context.Context, result *core.Result) Presentation {
	kind := result.Kind()
	p := Presentation{Kind: kind, Envelope: apperrors.FromResult(ctx, result)}

	switch {
	case p.Envelope == nil:
		p.Text = successText(result)
	case kind == core.ResultPartialCompletion:
		p.Partial = compositeText(result.Composite)
	}
	return p
}

// PresentError renders an invocation the dispatcher refused.
func PresentError(ctx context.Context, tool string, err error) Presentation {
	env := apperrors.FromInvokeError(ctx, tool, err)
	kind := core.ResultRemoteError
	if env.Code == apperrors.CodeInternal {
		kind = core.ResultTransientFailure
	}
	return Presentation{Kind: kind, Envelope: env}
}

func successText(result *core.Result) string {
	if result.Composite != nil {
		return compositeText(result.Composite)
	}
	return string(result.Payload())
}

// compositeText prefixes fetched records with a short search summary.
func compositeText(comp *core.CompositeOutcome) string {
	if comp == nil {
		return ""
	}
	if comp.Found == 0 && len(comp.Pages) == 0 {
		return comp.Message
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search Results for: %s\n", comp.Query)
	fmt.Fprintf(&b, "Total found: %d\n", comp.Found)
	fmt.Fprintf(&b, "Returned: %d\n", returned(comp))
	b.WriteString(separator)
	b.WriteString("\n")
	b.Write(comp.Payload)
	return b.String()
}

// returned counts the records requested by completed pages.
func returned(comp *core.CompositeOutcome) int {
	if comp.State == core.StateCompleted {
		return comp.Total
	}
	pageSize := 0
	if comp.Planned > 0 {
		pageSize = (comp.Total + comp.Planned - 1) / comp.Planned
	}
	return min(len(comp.Pages)*pageSize, comp.Total)
}
