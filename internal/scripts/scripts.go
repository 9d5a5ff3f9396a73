// Package scripts carries the embedded client-side CSP scripts and
// registers them with the server's script provider.
package scripts

import (
	_ "embed"
)

//go:embed automoderation.lua
var automoderationLua []byte

//go:embed ai_debug.lua
var aiDebugLua []byte

// Provider is the server surface scripts are registered through.
type Provider interface {
	AddScript(content []byte, name string)
}

// RegisterAutoModeration installs the violation overlay script.
func RegisterAutoModeration(p Provider) {
	p.AddScript(automoderationLua, "automoderation.lua")
}

// RegisterAiDebug installs the AI debug overlay script. Only registered
// when debug mode is on.
func RegisterAiDebug(p Provider) {
	p.AddScript(aiDebugLua, "ai_debug.lua")
}
