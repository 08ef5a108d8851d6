// Package splatview bundles the front-end assets for the splat service so a
// single binary carries the whole application.
package splatview

import "embed"

//go:embed static/*
var StaticFiles embed.FS
