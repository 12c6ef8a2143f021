package document

import (
	"regexp"
	"strings"
)

// citationMarkerRe matches retrieval citation markers such as
// 【4:0†00388 - CONVENÇÃO.pdf】 that assistants append to grounded passages.
var citationMarkerRe = regexp.MustCompile(`【[^】]*】`)

// CleanReply strips citation markers from an assistant reply and trims
// surrounding whitespace, preserving all real content.
func CleanReply(reply string) string {
	return strings.TrimSpace(citationMarkerRe.ReplaceAllString(reply, ""))
}
