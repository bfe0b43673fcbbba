package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/opus-domini/sentinel/internal/core"
)

// SessionLogParser incrementally tails an agent's session.jsonl
// transcript (spec.md §6), classifying each newly complete line and
// caching the state a liveness poll should report when nothing new has
// appeared since the last call. Ported from the behaviors asserted by
// the original watcher's incremental-parser test suite.
type SessionLogParser struct {
	lastOffset int64
	state      core.AgentStatus
}

// NewSessionLogParser returns a parser positioned at the start of the
// log, reporting Working until its first classified line says
// otherwise.
func NewSessionLogParser() *SessionLogParser {
	return &SessionLogParser{state: core.AgentRunning}
}

// sessionLine is the subset of a transcript line's shape the
// classifier needs.
type sessionLine struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
}

// Parse reads whatever bytes have been appended to path since the last
// call, classifies every newly complete (newline-terminated) line, and
// returns the resulting state. An incomplete trailing line is left
// unconsumed for the next call: neither the offset nor the cached state
// advances past it. A file that has shrunk below the last offset is
// treated as a fresh session: the offset resets to 0 and the state
// resets to Working. A missing file reports the cached state unchanged
// (the session hasn't started writing yet).
func (p *SessionLogParser) Parse(path string) (core.AgentStatus, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p.state, nil
		}
		return p.state, fmt.Errorf("open session log %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return p.state, fmt.Errorf("stat session log %s: %w", path, err)
	}
	size := info.Size()
	if size < p.lastOffset {
		p.lastOffset = 0
		p.state = core.AgentRunning
	}
	if size == p.lastOffset {
		return p.state, nil
	}

	if _, err := f.Seek(p.lastOffset, io.SeekStart); err != nil {
		return p.state, fmt.Errorf("seek session log %s: %w", path, err)
	}
	buf := make([]byte, size-p.lastOffset)
	if _, err := io.ReadFull(f, buf); err != nil {
		return p.state, fmt.Errorf("read session log %s: %w", path, err)
	}

	lastNewline := bytes.LastIndexByte(buf, '\n')
	if lastNewline < 0 {
		return p.state, nil // trailing line still incomplete
	}
	complete := buf[:lastNewline+1]
	p.lastOffset += int64(len(complete))

	for _, line := range bytes.Split(bytes.TrimRight(complete, "\n"), []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		p.state = classifySessionLine(line)
	}
	return p.state, nil
}

// classifySessionLine applies the Working/WaitingForInput rule: an
// assistant message whose content blocks include a text block and no
// tool_use block means the agent has finished a turn and is waiting on
// the user; every other line (user messages, tool-use turns regardless
// of accompanying text, thinking-only turns) means it's still working.
func classifySessionLine(line []byte) core.AgentStatus {
	var entry sessionLine
	if err := json.Unmarshal(line, &entry); err != nil {
		return core.AgentRunning
	}
	if entry.Type != "assistant" {
		return core.AgentRunning
	}
	var blocks []contentBlock
	if err := json.Unmarshal(entry.Message.Content, &blocks); err != nil {
		return core.AgentRunning
	}
	hasText, hasToolUse := false, false
	for _, b := range blocks {
		switch b.Type {
		case "text":
			hasText = true
		case "tool_use":
			hasToolUse = true
		}
	}
	if hasText && !hasToolUse {
		return core.AgentIdle
	}
	return core.AgentRunning
}
