// internal/model/block.go
package model

// Known block types. Unknown types are tolerated by the renderer and
// produce no output, so newer editors can ship new blocks ahead of us.
const (
	BlockHeading   = "heading"
	BlockParagraph = "paragraph"
)

type ContentBlock struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}
