// internal/render/render.go
package render

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
)

// Blocks renders an ordered block list to HTML. Pure and deterministic:
// no I/O, identical input yields byte-identical output. Block text is
// escaped here and nowhere else, so this is the single enforcement point
// against markup injection by campaign authors. Unknown block types
// render as an empty string rather than an error.
func Blocks(blocks []model.ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		content := html.EscapeString(b.Content)
		switch b.Type {
		case model.BlockHeading:
			parts = append(parts, "<h1>"+content+"</h1>")
		case model.BlockParagraph:
			parts = append(parts, "<p>"+content+"</p>")
		default:
			parts = append(parts, "")
		}
	}
	return strings.Join(parts, "\n")
}

// ApplyVariables substitutes {{name}} placeholders in rendered HTML.
// Runs after escaping, so values land in the markup verbatim: callers
// may inject pre-built fragments (personalized links) and are
// responsible for sanitizing untrusted values themselves.
func ApplyVariables(rendered string, variables map[string]string) string {
	for key, value := range variables {
		re := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(key) + `\s*\}\}`)
		rendered = re.ReplaceAllLiteralString(rendered, value)
	}
	return rendered
}

// ParseBlocks decodes a campaign's content_json. Accepts either a raw
// block array or a JSON string wrapping one, which is what older editor
// autosaves produced.
func ParseBlocks(contentJSON json.RawMessage) ([]model.ContentBlock, error) {
	if len(contentJSON) == 0 {
		return nil, nil
	}
	var blocks []model.ContentBlock
	if err := json.Unmarshal(contentJSON, &blocks); err == nil {
		return blocks, nil
	}
	var wrapped string
	if err := json.Unmarshal(contentJSON, &wrapped); err == nil {
		if err := json.Unmarshal([]byte(wrapped), &blocks); err == nil {
			return blocks, nil
		}
	}
	return nil, apperrors.NewValidation("invalid content_json")
}
