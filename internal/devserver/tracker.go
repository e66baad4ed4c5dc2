package devserver

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Default bundler output markers. The bundler prints one of them as the last line of
// every compilation.
const (
	DefaultSuccessPattern = `: Compiled\.`
	DefaultFailurePattern = `: Failed to compile\.`
)

var ansiEscape = regexp.MustCompile(`\x1b\[[;\d]*m`)

// CompileResult is the outcome of one bundler compilation
type CompileResult struct {
	Success bool
	// Output holds the lines printed since the previous compilation
	Output string
}

// OutputTracker scans bundler output and reports each finished compilation
type OutputTracker struct {
	success *regexp.Regexp
	failure *regexp.Regexp
	logger  *zap.Logger
	onDone  func(CompileResult)

	mu      sync.Mutex
	output  strings.Builder
	count   int
	first   chan struct{}
	firstOK bool
}

// NewOutputTracker compiles the success and failure patterns. An empty failure
// pattern disables failure detection.
func NewOutputTracker(successPattern, failurePattern string, logger *zap.Logger, onDone func(CompileResult)) (*OutputTracker, error) {
	if successPattern == "" {
		successPattern = DefaultSuccessPattern
	}
	success, err := regexp.Compile(successPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid success pattern: %w", err)
	}

	var failure *regexp.Regexp
	if failurePattern != "" {
		failure, err = regexp.Compile(failurePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid failure pattern: %w", err)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutputTracker{
		success: success,
		failure: failure,
		logger:  logger,
		onDone:  onDone,
		first:   make(chan struct{}),
	}, nil
}

// Track reads r line by line until EOF
func (t *OutputTracker) Track(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.Line(scanner.Text())
	}
	return scanner.Err()
}

// Line feeds one output line to the tracker
func (t *OutputTracker) Line(line string) {
	clean := strings.TrimSpace(ansiEscape.ReplaceAllString(line, ""))

	succeeded := t.success.MatchString(clean)
	failed := !succeeded && t.failure != nil && t.failure.MatchString(clean)

	if !succeeded && !failed {
		t.logger.Debug(clean)
		t.mu.Lock()
		t.output.WriteString(clean)
		t.output.WriteByte('\n')
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	result := CompileResult{Success: succeeded, Output: t.output.String()}
	t.output.Reset()
	t.count++
	if t.count == 1 {
		t.firstOK = succeeded
		close(t.first)
	}
	t.mu.Unlock()

	if succeeded {
		t.logger.Info("bundle compiled")
	} else {
		t.logger.Warn("bundle failed to compile", zap.String("output", result.Output))
	}
	if t.onDone != nil {
		t.onDone(result)
	}
}

// FirstCompilation is closed once the first compilation finishes
func (t *OutputTracker) FirstCompilation() <-chan struct{} {
	return t.first
}

// Compilations returns the number of finished compilations and whether the first
// one succeeded
func (t *OutputTracker) Compilations() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count, t.firstOK
}
