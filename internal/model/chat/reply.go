package chat

import (
	"strings"

	"github.com/goccy/go-json"
)

// ReplyContent is the normalized shape of a model reply. Providers sometimes
// answer with a JSON list of strings instead of plain text; both shapes are
// kept here and reduced with Text before use.
type ReplyContent struct {
	text string
	list []string
}

// TextReply wraps plain text.
func TextReply(text string) ReplyContent {
	return ReplyContent{text: text}
}

// ListReply wraps a list of text fragments.
func ListReply(items []string) ReplyContent {
	return ReplyContent{list: append([]string(nil), items...)}
}

// ParseReplyContent detects a JSON array of strings and tags it as a list,
// anything else is plain text.
func ParseReplyContent(raw string) ReplyContent {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return ListReply(items)
		}
	}
	return TextReply(raw)
}

// IsList reports whether the reply arrived as a list.
func (r ReplyContent) IsList() bool {
	return r.list != nil
}

// Text reduces the reply to text. A list yields its first non-empty element.
func (r ReplyContent) Text() string {
	if r.list == nil {
		return r.text
	}
	for _, item := range r.list {
		if strings.TrimSpace(item) != "" {
			return item
		}
	}
	return ""
}
