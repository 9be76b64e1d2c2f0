// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI tools for the command line: progress bar for train.Loop,
// tables and parsing of settings.
package commandline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/stylekit/pkg/ml/train"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

// FormatTable renders a table with rounded borders. The first column is right-aligned.
func FormatTable(header []string, rows [][]string) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 0:
				return rightAlignedStyle
			default:
				return normalStyle
			}
		}).
		Headers(header...).
		Rows(rows...)
	return table.String()
}

// SprintMetrics returns one line per metric of the loop, with the given values, as returned by train.Loop.Run.
func SprintMetrics(loop *train.Loop, values []float64) string {
	parts := make([]string, 0, len(loop.Metrics))
	for metricIdx, metric := range loop.Metrics {
		if metricIdx >= len(values) {
			break
		}
		parts = append(parts, fmt.Sprintf("\t%s (%s): %s", metric.Name(), metric.ShortName(),
			metric.PrettyPrint(values[metricIdx])))
	}
	return strings.Join(parts, "\n")
}
