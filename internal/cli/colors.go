package cli

import (
	"fmt"
	"os"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
)

// RGB represents a TrueColor
type RGB struct {
	R, G, B float64
}

var (
	BrandBlue   = RGB{0, 120, 255}
	BrandPurple = RGB{189, 52, 235}
)

var disableColor = checkNoColor()

// https://no-color.org
func checkNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Enabled reports whether ANSI colour output is on.
func Enabled() bool {
	return !disableColor
}

// SetEnabled overrides NO_COLOR detection, e.g. from log.color.
func SetEnabled(on bool) {
	disableColor = !on
}

// Style wraps text in a specific color code
func Style(text string, colorCode string) string {
	if disableColor {
		return text
	}
	return colorCode + text + Reset
}

// ColorizeRGB returns text wrapped in ANSI TrueColor escape codes
func ColorizeRGB(text string, c RGB) string {
	if disableColor {
		return text
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", int(c.R), int(c.G), int(c.B), text)
}

// Gradient colours each rune of text on a linear blend from start to end.
func Gradient(text string, start, end RGB) string {
	if disableColor {
		return text
	}
	runes := []rune(text)
	if len(runes) < 2 {
		return ColorizeRGB(text, start)
	}

	var out string
	for i, r := range runes {
		p := float64(i) / float64(len(runes)-1)
		out += ColorizeRGB(string(r), RGB{
			R: start.R + (end.R-start.R)*p,
			G: start.G + (end.G-start.G)*p,
			B: start.B + (end.B-start.B)*p,
		})
	}
	return out
}

func CheckMark() string {
	return Style("✔", Green)
}

func Arrow() string {
	return Style("➜", Blue)
}

func CrossMark() string {
	return Style("✘", Red)
}

func WarningSign() string {
	return Style("!", Yellow)
}

// Banner is the startup line printed before the first log entry.
func Banner(name, version string) string {
	return fmt.Sprintf("%s %s", Gradient(name, BrandBlue, BrandPurple), Style(version, Dim))
}
