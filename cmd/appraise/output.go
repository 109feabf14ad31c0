package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// statusLabelWidth keeps the status and train-summary rows aligned; the
// longest label is "Bundle dir:".
const statusLabelWidth = 12

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func notef(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(colorGreen, "✓", format, args...) }

func printError(format string, args ...any) { notef(colorRed, "✗", format, args...) }

func printWarning(format string, args ...any) { notef(colorYellow, "⚠", format, args...) }

func printStep(format string, args ...any) { notef(colorCyan, "→", format, args...) }

// statusRow renders one aligned "Label: value" line.
func statusRow(label, value string) string {
	padded := fmt.Sprintf("%-*s", statusLabelWidth, label+":")
	return "  " + colorize(colorBold, padded) + " " + value
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintln(os.Stderr, statusRow(label, fmt.Sprintf(format, args...)))
}
