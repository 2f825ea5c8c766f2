// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/pipeline"
)

// printSummary writes the human-readable batch summary. Decorations
// are suppressed when the writer is not a terminal so piped output
// stays machine-friendly.
func printSummary(w io.Writer, result *pipeline.BatchResult) {
	successful := 0
	for _, pr := range result.PullRequests {
		if pr.Error == "" {
			successful++
		}
	}
	failed := len(result.PullRequests) - successful

	ok, bad := "", ""
	if isTerminal(w) {
		ok, bad = "✅ ", "❌ "
	}

	fmt.Fprintf(w, "\n%sSuccessfully processed: %d\n", ok, successful)
	if failed > 0 {
		fmt.Fprintf(w, "%sFailed: %d\n", bad, failed)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
