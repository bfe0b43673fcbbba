package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

const maxMessageBytes = 200 << 20

// client is a thin synchronous wrapper over one connection to the
// daemon's unix socket, framing requests and responses the same way
// internal/listener does on the other end.
type client struct {
	conn    net.Conn
	timeout time.Duration
}

func dial(sockPath string, timeout time.Duration) (*client, error) {
	conn, err := net.DialTimeout("unix", sockPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", sockPath, err)
	}
	return &client{conn: conn, timeout: timeout}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

type wireRequest struct {
	Type        string            `json:"type"`
	ProjectRoot string            `json:"projectRoot,omitempty"`
	InvokeDir   string            `json:"invokeDir,omitempty"`
	Namespace   string            `json:"namespace,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	NamedArgs   map[string]string `json:"namedArgs,omitempty"`
	EventKind   string            `json:"eventKind,omitempty"`
	EventData   json.RawMessage   `json:"eventData,omitempty"`
	JobID       string            `json:"jobId,omitempty"`
	AgentID     string            `json:"agentId,omitempty"`
	WorkerName  string            `json:"workerName,omitempty"`
	CronName    string            `json:"cronName,omitempty"`
	QueueName   string            `json:"queueName,omitempty"`
	DecisionID  string            `json:"decisionId,omitempty"`
	Chosen      *int              `json:"chosen,omitempty"`
	Message     string            `json:"message,omitempty"`
	Input       string            `json:"input,omitempty"`
	Lines       int               `json:"lines,omitempty"`
}

type wireResponse struct {
	OK          bool            `json:"ok"`
	Error       string          `json:"error,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func (c *client) call(req wireRequest) (wireResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wireResponse{}, fmt.Errorf("encode request: %w", err)
	}
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if err := writeFrame(c.conn, body); err != nil {
		return wireResponse{}, fmt.Errorf("send request: %w", err)
	}
	respBody, err := readFrame(c.conn)
	if err != nil {
		return wireResponse{}, fmt.Errorf("read response: %w", err)
	}
	var resp wireResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return wireResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func writeFrame(w io.Writer, body []byte) error {
	if len(body) > maxMessageBytes {
		return fmt.Errorf("message too large: %d bytes", len(body))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessageBytes {
		return nil, fmt.Errorf("response too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
