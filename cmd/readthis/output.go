package main

import (
	"fmt"
	"os"

	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/remote"
	"github.com/avelis/readthis/internal/target"
)

// Human-facing chatter goes to stderr; listings and cursors go to stdout so
// they can be piped.

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func paint(style, s string) string {
	if noColor {
		return s
	}
	return style + s + ansiReset
}

func note(style, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(style, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { note(ansiGreen, "✓", format, args...) }
func printError(format string, args ...any)   { note(ansiRed, "✗", format, args...) }
func printWarning(format string, args ...any) { note(ansiYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { note(ansiCyan, "→", format, args...) }

func printStatus(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

const titleWidth = 70

// printLink renders one collection row for `readthis list`: read marker,
// modification time, title (host when the remote has not enriched one yet),
// and the target on its own line for copy-paste.
func printLink(link remote.Link) {
	marker := " "
	if link.Status == remote.StatusRead {
		marker = paint(ansiGreen, "✓")
	}
	title := link.Title
	if title == "" {
		title = target.DisplayHost(link.RawURL)
	}
	fmt.Printf("%s %s  %s\n    %s\n",
		marker,
		link.UpdatedAt.Local().Format("2006-01-02 15:04"),
		paint(ansiBold, truncate(title, titleWidth)),
		link.RawURL,
	)
}

// printIntent renders one pending entry for `readthis queue`.
func printIntent(it queue.Intent) {
	fmt.Printf("%s  %-6s  %s\n",
		it.CapturedAt.Local().Format("2006-01-02 15:04:05"),
		it.Desired,
		it.Target,
	)
	if it.LastError != "" {
		fmt.Printf("    %s\n", paint(ansiYellow, "last error: "+it.LastError))
	}
}

// truncate shortens s to at most max runes. Titles come from arbitrary pages;
// cutting on bytes could split a multi-byte rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
