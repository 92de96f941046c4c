package ui

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned by prompts when stdin is not a terminal.
var ErrNotInteractive = errors.New("stdin is not a terminal")

// PromptStoreName asks for the store display name.
func PromptStoreName() (string, error) {
	if !IsTerminal(os.Stdin) {
		return "", ErrNotInteractive
	}
	var name string
	err := huh.NewInput().
		Title("What is your store called?").
		Description("Shown on the daily summary sheet.").
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("store name cannot be empty")
			}
			return nil
		}).
		Value(&name).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

// PromptAuthCode shows the sign-in URL and reads back the authorization code.
func PromptAuthCode(url string) (string, error) {
	if !IsTerminal(os.Stdin) {
		return "", ErrNotInteractive
	}
	var code string
	err := huh.NewInput().
		Title("Open this URL, approve access, then paste the code").
		Description(url).
		Value(&code).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// Confirm asks a yes/no question. Non-interactive sessions get false.
func Confirm(title string) bool {
	if !IsTerminal(os.Stdin) {
		return false
	}
	var ok bool
	if err := huh.NewConfirm().Title(title).Value(&ok).Run(); err != nil {
		return false
	}
	return ok
}
