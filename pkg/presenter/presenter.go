// Package presenter provides consistent CLI output for user-facing messages,
// including skill listings, upgrade notices and run results, with color
// support and quiet mode.
package presenter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// UpgradeURL is where users upgrade to the cloud tier
const UpgradeURL = "zeroagentos.com"

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Prompt(question string, options ...string) string
	Skills(entries []skilltypes.Entry)
	Upgrade(message string)
	Result(result any)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	input       io.Reader
	colorMode   ColorMode
	quiet       bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto automatically detects whether to use colored output based on terminal capabilities
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output regardless of terminal capabilities
	ColorAlways
	// ColorNever disables colored output regardless of terminal capabilities
	ColorNever
)

// New creates a new TerminalPresenter with default settings
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom settings
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	presenter := &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		input:       os.Stdin,
		colorMode:   colorMode,
	}

	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
	}

	return presenter
}

// detectColorMode determines the appropriate color mode based on environment
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("ZEROAGENT_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header with consistent formatting
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Prompt displays a prompt and reads user input
func (p *TerminalPresenter) Prompt(question string, options ...string) string {
	promptColor := color.New(color.FgCyan)

	if len(options) > 0 {
		promptColor.Fprintf(p.output, "%s [%s]: ", question, strings.Join(options, "/"))
	} else {
		promptColor.Fprintf(p.output, "%s: ", question)
	}

	response, err := bufio.NewReader(p.input).ReadString('\n')
	if err != nil && response == "" {
		return ""
	}
	return strings.TrimSpace(response)
}

func statusColor(status skilltypes.Status) *color.Color {
	switch status {
	case skilltypes.StatusActive:
		return color.New(color.FgGreen)
	case skilltypes.StatusLocked:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}

// Skills displays installed skills as a table
func (p *TerminalPresenter) Skills(entries []skilltypes.Entry) {
	if p.quiet {
		return
	}
	if len(entries) == 0 {
		p.Info("No skills installed.")
		return
	}

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tMODE\tSTATUS\tORIGIN\tDESCRIPTION")
	for _, e := range entries {
		mode := string(e.ExecutionMode)
		switch {
		case e.ExecutionMode == skilltypes.ModeScheduled && e.Schedule != "":
			mode += " (" + e.Schedule + ")"
		case e.ExecutionMode == skilltypes.ModeTriggered && e.Trigger != nil:
			mode += " (" + e.Trigger.Condition + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Version, mode, statusColor(e.Status).Sprint(e.Status), e.Origin, e.Description)
	}
	w.Flush()
	fmt.Fprintf(p.output, "\n%d skill(s) installed\n", len(entries))
}

// Upgrade displays a cloud tier notice followed by the upgrade link
func (p *TerminalPresenter) Upgrade(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgBlue, color.Bold).Fprintf(p.output, "● %s\n", message)
	color.New(color.FgCyan).Fprintf(p.output, "  Upgrade at %s\n", UpgradeURL)
}

// Result displays a skill result, pretty printing structured values
func (p *TerminalPresenter) Result(result any) {
	if p.quiet || result == nil {
		return
	}
	if s, ok := result.(string); ok {
		fmt.Fprintln(p.output, s)
		return
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(p.output, "%v\n", result)
		return
	}
	fmt.Fprintln(p.output, string(out))
}

// Separator displays a visual separator
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

// Global presenter instance for convenience
var defaultPresenter = New()

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter instance.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter instance.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter instance.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter instance.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Prompt displays a prompt and reads user input using the default presenter instance.
func Prompt(question string, options ...string) string {
	return defaultPresenter.Prompt(question, options...)
}

// Skills displays a skill table using the default presenter instance.
func Skills(entries []skilltypes.Entry) {
	defaultPresenter.Skills(entries)
}

// Upgrade displays a cloud tier notice using the default presenter instance.
func Upgrade(message string) {
	defaultPresenter.Upgrade(message)
}

// Result displays a skill result using the default presenter instance.
func Result(result any) {
	defaultPresenter.Result(result)
}

// Separator displays a visual separator using the default presenter instance.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet enables or disables quiet mode for the default presenter instance.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// IsQuiet returns whether quiet mode is enabled for the default presenter instance.
func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
