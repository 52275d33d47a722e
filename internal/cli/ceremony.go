package cli

import (
	"context"
	"errors"
	"fmt"
)

var errNoPasskey = errors.New("no passkey address entered")

// PromptCeremony runs the passkey ceremony on an external secure page and
// asks the user to paste the resulting address.
type PromptCeremony struct {
	prompt   *Prompter
	setupURL string
}

// NewPromptCeremony builds a ceremony that sends users to setupURL.
func NewPromptCeremony(prompt *Prompter, setupURL string) *PromptCeremony {
	return &PromptCeremony{prompt: prompt, setupURL: setupURL}
}

// Create asks for the address of a newly created passkey.
func (c *PromptCeremony) Create(ctx context.Context) (string, error) {
	return c.ask(ctx, fmt.Sprintf("Create a passkey at %s and paste its address: ", c.setupURL))
}

// Connect asks for the address of an existing passkey.
func (c *PromptCeremony) Connect(ctx context.Context) (string, error) {
	return c.ask(ctx, "Passkey address: ")
}

func (c *PromptCeremony) ask(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	address, err := c.prompt.Ask(label)
	if err != nil {
		return "", err
	}
	if address == "" {
		return "", errNoPasskey
	}
	return address, nil
}
