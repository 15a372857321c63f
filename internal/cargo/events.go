package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EventKind tags the variants of a structured build event.
type EventKind int

const (
	EventOther EventKind = iota
	EventCompilerArtifact
	EventCompilerMessage
	EventTextLine
)

func (k EventKind) String() string {
	switch k {
	case EventCompilerArtifact:
		return "compiler-artifact"
	case EventCompilerMessage:
		return "compiler-message"
	case EventTextLine:
		return "text-line"
	default:
		return "other"
	}
}

// Event is one record of `cargo build --message-format=json` output.
type Event struct {
	Kind   EventKind
	Reason string

	// Target and Executable are set for EventCompilerArtifact. Executable is
	// empty for non-binary targets such as libraries.
	Target     string
	TargetKind []string
	Executable string

	// Text is the rendered diagnostic for EventCompilerMessage and the raw
	// line for EventTextLine.
	Text string
}

type wireTarget struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

type wireDiagnostic struct {
	Message  string  `json:"message"`
	Rendered *string `json:"rendered"`
}

type wireMessage struct {
	Reason     string          `json:"reason"`
	Target     *wireTarget     `json:"target"`
	Executable *string         `json:"executable"`
	Message    *wireDiagnostic `json:"message"`
}

// ParseEvent decodes a single line. Lines that are not JSON objects with a
// reason are returned as EventTextLine, mirroring how cargo interleaves
// plain output from build scripts.
func ParseEvent(line []byte) Event {
	line = bytes.TrimRight(line, "\r\n")

	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil || msg.Reason == "" {
		return Event{Kind: EventTextLine, Text: string(line)}
	}

	switch msg.Reason {
	case "compiler-artifact":
		event := Event{Kind: EventCompilerArtifact, Reason: msg.Reason}
		if msg.Target != nil {
			event.Target = msg.Target.Name
			event.TargetKind = msg.Target.Kind
		}
		if msg.Executable != nil {
			event.Executable = *msg.Executable
		}
		return event
	case "compiler-message":
		event := Event{Kind: EventCompilerMessage, Reason: msg.Reason}
		if msg.Message != nil {
			if msg.Message.Rendered != nil {
				event.Text = *msg.Message.Rendered
			} else {
				event.Text = msg.Message.Message
			}
		}
		return event
	default:
		return Event{Kind: EventOther, Reason: msg.Reason}
	}
}

// ParseStream reads newline-delimited events from r and calls fn for each
// one. Lines may be arbitrarily long; blank lines are skipped. The first error
// from fn stops parsing.
func ParseStream(r io.Reader, fn func(Event) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if fnErr := fn(ParseEvent(line)); fnErr != nil {
				return fnErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read build events: %w", err)
		}
	}
}
