package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command names accepted on the command topic.
const (
	CommandChargeEnable    = "charge_enable"
	CommandDischargeEnable = "discharge_enable"
)

// ErrUnknownCommand is returned by ParseCommand for unsupported command names.
var ErrUnknownCommand = errors.New("unknown command")

// Command is an operator request to change a user-level enable switch.
type Command struct {
	Name  string
	Value bool
}

type commandJSON struct {
	Command string `json:"command"`
	Value   *bool  `json:"value"`
}

// ParseCommand decodes a command payload.
func ParseCommand(data []byte) (Command, error) {
	var cj commandJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cj.Command {
	case CommandChargeEnable, CommandDischargeEnable:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cj.Command)
	}
	if cj.Value == nil {
		return Command{}, fmt.Errorf("command %s: missing value", cj.Command)
	}
	return Command{Name: cj.Command, Value: *cj.Value}, nil
}

// FormatCommand encodes a command for the command topic.
func FormatCommand(cmd Command) ([]byte, error) {
	v := cmd.Value
	return json.Marshal(commandJSON{Command: cmd.Name, Value: &v})
}
