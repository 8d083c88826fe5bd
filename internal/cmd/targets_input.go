package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/refreshrelay/refreshrelay/internal/errors"
)

// resolveTargets merges positional targets with those read from --targets-file.
// Blank lines and lines starting with # are skipped.
func resolveTargets(positional []string, targetsFile string, stdin io.Reader) ([]string, error) {
	targets := make([]string, 0, len(positional))
	for _, raw := range positional {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}

	if path := strings.TrimSpace(targetsFile); path != "" {
		fromFile, err := readTargetsFile(path, stdin)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}

	if len(targets) == 0 {
		return nil, apperrors.NewInvalidInputError("at least one target URL is required")
	}
	return targets, nil
}

func readTargetsFile(path string, stdin io.Reader) ([]string, error) {
	reader := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck // read-only
		reader = file
	}

	var targets []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		targets = append(targets, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return targets, nil
}
