package server

import (
	"strings"

	"github.com/we11as22/deepresearch/pkg/session"
)

// modeAliases maps every accepted client mode spelling onto the
// canonical session mode. Both transports share the table.
var modeAliases = map[string]session.Mode{
	"chat":         session.ModeChat,
	"simple":       session.ModeChat,
	"conversation": session.ModeChat,

	"search":     session.ModeWeb,
	"web":        session.ModeWeb,
	"web_search": session.ModeWeb,
	"speed":      session.ModeWeb,

	"deep_search": session.ModeDeepSearch,
	"deep":        session.ModeDeepSearch,
	"balanced":    session.ModeDeepSearch,

	"deep_research": session.ModeDeepResearch,
	"research":      session.ModeDeepResearch,
	"quality":       session.ModeDeepResearch,
}

// ParseMode resolves a client mode string. Empty or unknown strings
// return ok=false so the caller can fall back to the classifier.
func ParseMode(raw string) (session.Mode, bool) {
	mode, ok := modeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return mode, ok
}
