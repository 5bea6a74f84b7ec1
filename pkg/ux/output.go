// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the venuewatch CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Venuewatch color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, bars
	ColorTealPrimary = lipgloss.Color("#20B9B4") // titles
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text, bar track

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Bar     lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Bar:     lipgloss.NewStyle().Foreground(ColorTealBright),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Printer writes CLI output at one personality level.
//
// Machine level writes tab-separated lines without styling so output can
// be piped into cut, awk or a spreadsheet.
type Printer struct {
	out   io.Writer
	err   io.Writer
	level PersonalityLevel
}

// NewPrinter returns a Printer. Warnings and errors go to errOut.
func NewPrinter(out, errOut io.Writer, level PersonalityLevel) *Printer {
	return &Printer{out: out, err: errOut, level: level}
}

// Level returns the printer's level.
func (p *Printer) Level() PersonalityLevel { return p.level }

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !ShouldShowColors(p.level) {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.style(Styles.Success, string(i))
	case IconWarning:
		return p.style(Styles.Warning, string(i))
	case IconError:
		return p.style(Styles.Error, string(i))
	default:
		return string(i)
	}
}

// Title prints a styled title. Machine output omits it.
func (p *Printer) Title(text string) {
	if p.level == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.out, p.style(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.icon(IconSuccess), p.style(Styles.Success, text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.err, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.err, "%s %s\n", p.icon(IconWarning), p.style(Styles.Warning, text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.err, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.err, "%s %s\n", p.icon(IconError), p.style(Styles.Error, text))
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.style(Styles.Muted, "│"), text)
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	if p.level != PersonalityStandard {
		fmt.Fprintf(p.out, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Table prints rows under headers. Columns are left-aligned and padded to
// their widest cell; machine output is tab-separated.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.level == PersonalityMachine {
		fmt.Fprintln(p.out, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.out, strings.Join(row, "\t"))
		}
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, s *lipgloss.Style) string {
		var b strings.Builder
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			text := cell
			if s != nil {
				text = p.style(*s, cell)
			}
			b.WriteString(text)
			if i < len(cells)-1 && i < len(widths) {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
			}
		}
		return b.String()
	}

	header := Styles.Header
	fmt.Fprintln(p.out, line(headers, &header))
	for _, row := range rows {
		fmt.Fprintln(p.out, line(row, nil))
	}
}

// Summary prints name=value pairs on one line.
func (p *Printer) Summary(pairs ...Count) {
	parts := make([]string, len(pairs))
	for i, c := range pairs {
		if p.level == PersonalityMachine {
			parts[i] = fmt.Sprintf("%s=%d", c.Name, c.Value)
			continue
		}
		parts[i] = p.style(Styles.Header, fmt.Sprintf("%d", c.Value)) + " " + p.style(Styles.Muted, c.Name)
	}
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.out, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", strings.Join(parts, "  "))
}

// Count is one Summary entry.
type Count struct {
	Name  string
	Value int
}

// Bar renders value as a horizontal bar of width cells scaled against max.
// Machine output and non-positive max give "".
func (p *Printer) Bar(value, max float64, width int) string {
	if p.level == PersonalityMachine || max <= 0 || width <= 0 {
		return ""
	}
	frac := value / max
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac*float64(width) + 0.5)
	return p.style(Styles.Bar, repeatChar('█', filled)) +
		p.style(Styles.Muted, repeatChar('░', width-filled))
}

func repeatChar(c rune, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(string(c), n)
}
