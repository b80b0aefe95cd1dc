package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"cutline/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// dependencyLines renders a summary line followed by one line per binary.
func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	if len(deps) == 0 {
		return []string{renderStatusLine("Summary", statusInfo, "No external binaries required", colorize)}
	}
	var missing []string
	lines := make([]string, 0, len(deps)+1)
	for _, dep := range deps {
		kind := statusOK
		detail := "Ready"
		if dep.Command != "" {
			detail = fmt.Sprintf("Ready (command: %s)", dep.Command)
		}
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			detail = orDash(dep.Detail)
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	summary := renderStatusLine("Summary", statusOK, fmt.Sprintf("%d of %d available", len(deps)-len(missing), len(deps)), colorize)
	if len(missing) > 0 {
		summary = renderStatusLine("Summary", statusError, "Missing: "+strings.Join(missing, ", "), colorize)
	}
	return append([]string{summary}, lines...)
}

// statusLines renders every section of the daemon status view.
func statusLines(status api.DaemonStatus, running bool, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if !running {
		lines = append(lines, renderStatusLine("Cutline", statusError, "Not running", colorize))
		return lines
	}
	lines = append(lines,
		renderStatusLine("Cutline", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize),
		renderStatusLine("Catalog", statusInfo, status.CatalogPath, colorize),
		renderStatusLine("Lock", statusInfo, status.LockFilePath, colorize),
		"",
	)

	lines = append(lines, renderSectionHeader("Render Queue", colorize)...)
	lines = append(lines,
		renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d", status.Workers), colorize),
		renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", status.Queue.Queued), colorize),
		renderStatusLine("Running", statusInfo, fmt.Sprintf("%d", status.Queue.Running), colorize),
		"",
	)

	lines = append(lines, renderSectionHeader("Storage", colorize)...)
	lines = append(lines,
		renderStatusLine("Exports", statusInfo, orDash(status.Storage.Exports), colorize),
		renderStatusLine("Proxies", statusInfo, orDash(status.Storage.Proxies), colorize),
		renderStatusLine("Archive", statusInfo, fmt.Sprintf("%s (codec %s)", orDash(status.Storage.Archive), orDash(status.Storage.ArchiveCodec)), colorize),
		"",
	)

	lines = append(lines, renderSectionHeader("Garbage Collection", colorize)...)
	if !status.GC.Enabled {
		lines = append(lines, renderStatusLine("Schedule", statusWarn, "Disabled (run gc stages manually)", colorize))
	} else {
		lines = append(lines,
			renderStatusLine("Mark", statusInfo, "every "+orDash(status.GC.MarkInterval), colorize),
			renderStatusLine("Archive", statusInfo, "every "+orDash(status.GC.ArchiveInterval), colorize),
			renderStatusLine("Delete", statusInfo, "every "+orDash(status.GC.DeleteInterval), colorize),
		)
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(status.Dependencies, colorize)...)
	return lines
}
