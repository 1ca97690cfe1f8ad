// Package agreement is the boundary to the document-rendering
// collaborator. The engine hands over the facts of the stay and stores
// whatever bytes come back as the immutable agreement artifact.
package agreement

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

type RenderData struct {
	CustomerName string
	Tier         string
	ResourceKind string
	ResourceNo   int
	StartTime    time.Time
	EndTime      time.Time
	Amount       int64
	Currency     string
	Renewal      bool
}

type Renderer interface {
	Render(ctx context.Context, data RenderData) ([]byte, error)
}

// TextRenderer produces a plain-text agreement. The production
// renderer is an external service; this keeps the binary self-
// contained for development.
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(ctx context.Context, data RenderData) ([]byte, error) {
	var buf bytes.Buffer

	kind := "RENTAL AGREEMENT"
	if data.Renewal {
		kind = "RENTAL AGREEMENT (RENEWAL)"
	}

	fmt.Fprintf(&buf, "%s\n\n", kind)
	fmt.Fprintf(&buf, "Customer:  %s\n", data.CustomerName)
	fmt.Fprintf(&buf, "Unit:      %s %d (%s)\n", data.ResourceKind, data.ResourceNo, data.Tier)
	fmt.Fprintf(&buf, "From:      %s\n", data.StartTime.Format(time.RFC1123))
	fmt.Fprintf(&buf, "Until:     %s\n", data.EndTime.Format(time.RFC1123))
	fmt.Fprintf(&buf, "Amount:    %d.%02d %s\n", data.Amount/100, data.Amount%100, data.Currency)

	return buf.Bytes(), nil
}
