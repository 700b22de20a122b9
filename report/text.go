// Package report renders benchmark results as a console report or as JSON.
package report

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/exp/maps"

	"github.com/knights-analytics/npubench"
	"github.com/knights-analytics/npubench/util/safeconv"
)

const ruleWidth = 70

// Text writes the human readable report.
type Text struct {
	W     io.Writer
	Color bool
}

// NewText colours PASS/FAIL only when w is a terminal.
func NewText(w io.Writer) *Text {
	return &Text{W: w, Color: IsTerminal(w)}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type printer struct {
	w    *bufio.Writer
	pass *color.Color
	fail *color.Color
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) header(title string) {
	p.line("\n%s", strings.Repeat("=", ruleWidth))
	p.line(" %s", title)
	p.line("%s", strings.Repeat("=", ruleWidth))
}

func (p *printer) result(label string, value any, unit string) {
	p.line("  %-40s %15s %s", label, fmt.Sprint(value), unit)
}

func (p *printer) verdict(ok bool, text string) string {
	if ok {
		return p.pass.Sprint(text)
	}
	return p.fail.Sprint(text)
}

// Write renders results. Scenarios that did not run are left out.
func (t *Text) Write(results *npubench.Results) error {
	p := &printer{
		w:    bufio.NewWriter(t.W),
		pass: color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
	}
	if t.Color {
		p.pass.EnableColor()
		p.fail.EnableColor()
	} else {
		p.pass.DisableColor()
		p.fail.DisableColor()
	}

	p.header("NPU BENCHMARK SUITE")
	p.line("  Timestamp: %s", results.Timestamp.Format("2006-01-02 15:04:05"))
	writeSystem(p, results)
	writeStability(p, results)
	writeLatency(p, results)
	writeSustained(p, results)
	writeBurst(p, results)
	writeChurn(p, results)
	writeSummary(p, results)
	return p.w.Flush()
}

func writeSystem(p *printer, r *npubench.Results) {
	info := r.System
	p.header("SYSTEM INFORMATION")
	if info.CPU != "" {
		p.result("CPU", info.CPU, "")
	}
	if info.MemoryMB > 0 {
		p.result("Memory", info.MemoryMB, "MB")
	}
	if info.Kernel != "" {
		p.result("Kernel", info.Kernel, "")
	}
	p.result("NPU", info.NPU, "")
	p.result("Runtime", strings.TrimSpace(info.Runtime+" "+info.RuntimeVersion), "")
	p.result("Providers", strings.Join(info.Providers, ", "), "")
}

func writeStability(p *printer, r *npubench.Results) {
	s := r.Stability
	if s == nil {
		return
	}
	p.header("TEST 1: STABILITY TEST (Proves Driver Fix)")
	p.line("  Running %d consecutive inferences to verify no hangs...", s.Iterations)
	p.result("Model", s.Model, "")
	p.result("Backend", s.Backend, "")
	p.result("Total Inferences", s.Successes+s.Failures, "")
	p.result("Successful", s.Successes, "")
	p.result("Failed", s.Failures, "")
	p.result("Total Time", fmt.Sprintf("%.2f", s.Elapsed.Seconds()), "seconds")
	p.result("Average Rate", fmt.Sprintf("%.1f", s.Rate), "inf/sec")
	switch {
	case s.Successes+s.Failures < s.Iterations:
		p.line("\n  %s", p.verdict(false, fmt.Sprintf("*** STABILITY TEST INCOMPLETE - interrupted after %d of %d ***", s.Successes+s.Failures, s.Iterations)))
	case s.Passed:
		p.line("\n  %s", p.verdict(true, "*** STABILITY TEST PASSED - NO HANGS! ***"))
	default:
		p.line("\n  %s", p.verdict(false, fmt.Sprintf("*** STABILITY TEST FAILED - %d failures ***", s.Failures)))
	}
}

func writeLatency(p *printer, r *npubench.Results) {
	if len(r.Latency) == 0 {
		return
	}
	p.header("TEST 2: LATENCY BENCHMARK")
	for _, m := range r.Models {
		l, ok := r.Latency[m.Name]
		if !ok {
			continue
		}
		s := l.Summary
		p.line("\n  Model: %s", m.Name)
		p.line("  Path: %s", m.Path)
		p.result("Backend", l.Backend, "")
		p.result("Iterations", s.Count, "")
		if l.WarmupFailures > 0 {
			p.result("Warmup Failures", l.WarmupFailures, "")
		}
		if s.Failures > 0 {
			p.result("Failed", s.Failures, "")
		}
		p.result("Mean Latency", fmt.Sprintf("%.3f", s.Mean), "ms")
		p.result("Std Dev", fmt.Sprintf("%.3f", s.Std), "ms")
		p.result("Min Latency", fmt.Sprintf("%.3f", s.Min), "ms")
		p.result("Max Latency", fmt.Sprintf("%.3f", s.Max), "ms")
		p.result("P50 Latency", fmt.Sprintf("%.3f", s.P50), "ms")
		p.result("P95 Latency", fmt.Sprintf("%.3f", s.P95), "ms")
		p.result("P99 Latency", fmt.Sprintf("%.3f", s.P99), "ms")
		p.result("Throughput", fmt.Sprintf("%.1f", s.Throughput), "inf/sec")
	}
}

func writeSustained(p *printer, r *npubench.Results) {
	s := r.Sustained
	if s == nil {
		return
	}
	p.header(fmt.Sprintf("TEST 3: SUSTAINED LOAD TEST (%.0f seconds)", s.Duration.Seconds()))
	p.line("  Running continuous inference for %.0f seconds...", s.Duration.Seconds())
	for _, snapshot := range s.Snapshots {
		p.line("    [%5.1fs] %6d inferences, %.1f inf/sec", snapshot.Elapsed.Seconds(), snapshot.Count, snapshot.IntervalRate)
	}
	p.result("Total Inferences", s.Count, "")
	p.result("Errors", s.Errors, "")
	p.result("Duration", fmt.Sprintf("%.1f", s.Elapsed.Seconds()), "seconds")
	p.result("Average Throughput", fmt.Sprintf("%.1f", s.Throughput), "inf/sec")
	p.result("Total Operations", fmt.Sprintf("%.2f", float64(s.PixelsProcessed)/1e6), "M pixels processed")
}

func writeBurst(p *printer, r *npubench.Results) {
	b := r.Burst
	if b == nil {
		return
	}
	p.header("TEST 4: BURST TEST (Back-to-back inference)")
	for _, size := range b.Sizes {
		value := fmt.Sprintf("%.3f ms/inf, %.0f inf/sec", safeconv.DurationToMillis(size.PerInference), size.Throughput)
		p.result(fmt.Sprintf("Burst of %d", size.Size), value, "")
		if size.Failures > 0 {
			p.result(fmt.Sprintf("Burst of %d failures", size.Size), size.Failures, "")
		}
	}
}

func writeChurn(p *printer, r *npubench.Results) {
	c := r.Churn
	if c == nil {
		return
	}
	p.header("TEST 5: SESSION RECREATION TEST")
	p.line("  Creating and destroying sessions repeatedly...")
	p.result("Sessions Created", c.Opened, "")
	if c.OpenFailures > 0 {
		p.result("Session Open Failures", c.OpenFailures, "")
	}
	p.result("Inferences per Session", c.InferencesPerSession, "")
	p.result("Total Inferences", c.TotalInferences, "")
	if c.Failures > 0 {
		p.result("Failed", c.Failures, "")
	}
	p.result("Total Time", fmt.Sprintf("%.2f", c.Elapsed.Seconds()), "seconds")
	p.result("Rate", fmt.Sprintf("%.1f", c.Rate), "sessions/sec")
}

func writeSummary(p *printer, r *npubench.Results) {
	p.header("BENCHMARK SUMMARY")

	if s := r.Stability; s != nil {
		p.line("\n  DRIVER FIX VALIDATION:")
		switch {
		case s.Successes+s.Failures < s.Iterations:
			p.line("    %s %d of %d inferences run, incomplete (interrupted)", p.verdict(false, "[FAIL]"), s.Successes+s.Failures, s.Iterations)
		case s.Passed:
			p.line("    %s %d consecutive inferences completed without hanging", p.verdict(true, "[PASS]"), s.Iterations)
		default:
			p.line("    %s %d failures detected", p.verdict(false, "[FAIL]"), s.Failures)
		}
	}

	if s := r.Sustained; s != nil {
		p.line("\n  SUSTAINED LOAD:")
		if s.Errors == 0 {
			p.line("    %s %d inferences over %.0fs", p.verdict(true, "[PASS]"), s.Count, s.Elapsed.Seconds())
		} else {
			p.line("    %s %d inferences over %.0fs, %d errors", p.verdict(false, "[FAIL]"), s.Count, s.Elapsed.Seconds(), s.Errors)
		}
		p.line("           %.1f inf/sec sustained", s.Throughput)
	}

	if primary, ok := r.Primary(); ok {
		if l, found := r.Latency[primary.Name]; found {
			s := l.Summary
			p.line("\n  LATENCY (%s):", primary.Name)
			p.line("    Mean: %.3f ms | P95: %.3f ms | P99: %.3f ms", s.Mean, s.P95, s.P99)
		}
	}

	if len(r.Errors) > 0 {
		p.line("\n  SCENARIO ERRORS:")
		names := maps.Keys(r.Errors)
		slices.Sort(names)
		for _, name := range names {
			p.line("    %s %s: %s", p.verdict(false, "[ERROR]"), name, r.Errors[name])
		}
	}

	p.line("\n%s", strings.Repeat("=", ruleWidth))
	if r.Interrupted {
		p.line(" %s", p.verdict(false, "BENCHMARK INTERRUPTED"))
	} else {
		p.line(" BENCHMARK COMPLETE")
	}
	p.line("%s\n", strings.Repeat("=", ruleWidth))
}
