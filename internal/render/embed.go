package render

import "embed"

// templates contains the embedded HTML page templates.
//
//go:embed templates/*
var templates embed.FS
