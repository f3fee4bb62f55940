// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/i18n"
)

// promptPassword reads a password without echo. Falls back to a plain line
// read when stdin is not a terminal, which keeps piped invocations working.
func promptPassword(label string) (string, error) {
	fmt.Print(label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	return promptRawLine()
}

// promptLine prints a label and reads one line of input.
func promptLine(label string) (string, error) {
	fmt.Print(label)
	return promptRawLine()
}

func promptRawLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// gatherCredential collects username and password for an operation. The
// username comes from a flag; the password is always prompted.
func gatherCredential(username string) (auth.Credential, error) {
	var cred auth.Credential
	if username == "" {
		name, err := promptLine("Username: ")
		if err != nil {
			return cred, err
		}
		username = name
	}
	password, err := promptPassword(i18n.T("auth.prompt_password"))
	if err != nil {
		return cred, err
	}
	cred.Username = username
	cred.Password = password
	return cred, nil
}

// withSecondFactorRetry runs op and, when the account turns out to need a
// second factor, prompts for a code and retries once. Recovery codes are
// recognized by their length: TOTP codes are six digits, recovery codes
// sixteen characters.
func withSecondFactorRetry(cred auth.Credential, op func(auth.Credential) error) error {
	err := op(cred)
	if !errors.Is(err, auth.ErrSecondFactorRequired) {
		return err
	}

	code, perr := promptLine(i18n.T("auth.prompt_totp"))
	if perr != nil {
		return perr
	}
	cred.TOTPCode = strings.TrimSpace(code)
	cred.IsRecoveryCode = len(cred.TOTPCode) > 8
	return op(cred)
}
