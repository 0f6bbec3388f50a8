package handlers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// confirmInput is where confirmation prompts read from. Replaceable in
// tests.
var confirmInput io.Reader = os.Stdin

// confirm prints a y/N prompt and reports whether the user accepted.
// Anything other than "y" or "yes" declines.
func confirm(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)

	answer, err := bufio.NewReader(confirmInput).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
