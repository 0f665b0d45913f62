package parser

import (
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the note file extensions the engine scans.
var SupportedExtensions = map[string]bool{
	".zortex": true,
	".zx":     true,
	".md":     true,
	".txt":    true,
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
