// Package web ships the live-positions dashboard, compiled into the binary.
package web

import "embed"

// Content is the static frontend served at the root path.
//
//go:embed index.html app.js styles.css
var Content embed.FS
