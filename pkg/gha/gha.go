// Package gha writes GitHub Actions outputs, step summaries, and
// workflow annotations. Every writer is a no-op outside of Actions
// (when the corresponding environment variable is unset), so local runs
// behave identically minus the CI side effects.
package gha

import (
	"fmt"
	"os"
)

// Environment variables set by the Actions runner.
const (
	OutputEnv      = "GITHUB_OUTPUT"
	StepSummaryEnv = "GITHUB_STEP_SUMMARY"
)

// SetOutput appends a key=value pair to the step's output file.
func SetOutput(key, value string) error {
	return appendTo(OutputEnv, fmt.Sprintf("%s=%s\n", key, value))
}

// AppendStepSummary appends markdown to the job's step summary.
func AppendStepSummary(markdown string) error {
	return appendTo(StepSummaryEnv, markdown+"\n")
}

// Warning emits a workflow warning annotation on stdout.
func Warning(format string, args ...any) {
	fmt.Printf("::warning::"+format+"\n", args...)
}

// Notice emits a workflow notice annotation on stdout.
func Notice(format string, args ...any) {
	fmt.Printf("::notice::"+format+"\n", args...)
}

func appendTo(env, content string) error {
	path := os.Getenv(env)
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s file: %w", env, err)
	}

	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("writing to %s file: %w", env, err)
	}

	return nil
}
