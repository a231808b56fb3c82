package config

import (
	"fmt"

	"github.com/derailed/tcell/v2"
)

// Color represents a color in the application
type Color string

const (
	// DefaultColor represents a default color
	DefaultColor Color = "default"

	// TransparentColor represents the terminal bg color
	TransparentColor Color = "-"
)

// NewColor returns a new color
func NewColor(c string) Color {
	return Color(c)
}

// String returns color as string
func (c Color) String() string {
	if c.isHex() {
		return string(c)
	}
	if c == DefaultColor || c == TransparentColor || c == "" {
		return "-"
	}
	col := c.Color().TrueColor().Hex()
	if col < 0 {
		return "-"
	}
	return fmt.Sprintf("#%06x", col)
}

func (c Color) isHex() bool {
	return len(c) == 7 && c[0] == '#'
}

// Color returns a view color
func (c Color) Color() tcell.Color {
	if c == DefaultColor || c == TransparentColor || c == "" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(string(c)).TrueColor()
}

// ColorsConfig holds the inbox view colors
type ColorsConfig struct {
	Header  Color `json:"header" yaml:"header"`
	Unread  Color `json:"unread" yaml:"unread"`
	Read    Color `json:"read" yaml:"read"`
	Offline Color `json:"offline" yaml:"offline"`
	Status  Color `json:"status" yaml:"status"`
	Warning Color `json:"warning" yaml:"warning"`
}

// DefaultColors returns the default color configuration
func DefaultColors() ColorsConfig {
	return ColorsConfig{
		Header:  NewColor("#50fa7b"),
		Unread:  NewColor("#ffb86c"),
		Read:    NewColor("#f8f8f2"),
		Offline: NewColor("#6272a4"),
		Status:  NewColor("#8be9fd"),
		Warning: NewColor("#ff5555"),
	}
}

// fill replaces unset colors with those from def
func (c *ColorsConfig) fill(def ColorsConfig) {
	for _, p := range []struct {
		dst *Color
		src Color
	}{
		{&c.Header, def.Header},
		{&c.Unread, def.Unread},
		{&c.Read, def.Read},
		{&c.Offline, def.Offline},
		{&c.Status, def.Status},
		{&c.Warning, def.Warning},
	} {
		if *p.dst == "" {
			*p.dst = p.src
		}
	}
}
