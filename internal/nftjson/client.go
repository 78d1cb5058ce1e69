package nftjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandError reports that the engine rejected the submitted input, as
// opposed to the nft process failing to run at all. Callers can ignore
// expected rejections, e.g. deleting a table that does not exist.
type CommandError struct {
	Stderr string
}

func (e *CommandError) Error() string {
	return strings.TrimSpace(e.Stderr)
}

// IsCommandError reports whether err is an engine rejection.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// Client applies rulesets through the nft binary.
type Client struct {
	Binary string // path to nft; empty means "nft" from $PATH
}

func (c *Client) binary() string {
	if c != nil && c.Binary != "" {
		return c.Binary
	}
	return "nft"
}

// RunJSON pipes a JSON batch to `nft -j -f -` and returns the response
// envelope when the engine produced one (list commands do).
func (c *Client) RunJSON(ctx context.Context, batch Commands) (*CommandOutput, error) {
	input, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	stdout, err := c.run(ctx, input, "-j", "-f", "-")
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, nil
	}

	var output CommandOutput
	if err := json.Unmarshal(stdout, &output); err != nil {
		return nil, fmt.Errorf("decode nft response: %w", err)
	}

	return &output, nil
}

// Run pipes a plain-text ruleset to `nft -f -`, used for the static base
// layout.
func (c *Client) Run(ctx context.Context, ruleset string) error {
	_, err := c.run(ctx, []byte(ruleset), "-f", "-")
	return err
}

func (c *Client) run(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// non-empty stderr means the input was rejected, even on exit status 0
	if stderr.Len() > 0 {
		return nil, &CommandError{Stderr: stderr.String()}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CommandError{
				Stderr: fmt.Sprintf("%s exited with status %d", c.binary(), exitErr.ExitCode()),
			}
		}
		return nil, fmt.Errorf("run %s: %w", c.binary(), err)
	}

	return stdout.Bytes(), nil
}
