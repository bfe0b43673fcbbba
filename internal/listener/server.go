package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/opus-domini/sentinel/internal/eventlog"
)

// defaultRequestTimeout is spec.md §6's "5s default per request".
const defaultRequestTimeout = 5 * time.Second

// Appender appends an event to the WAL and wakes the dispatch loop, the
// only effect a listener handler is ever allowed to have on engine
// state (spec.md §2's "CLI -> IPC request -> listener -> WAL append ->
// event reader -> runtime dispatch").
type Appender func(kind eventlog.Kind, payload any) error

// handlerFunc computes a Response for one request, optionally appending
// events via appender as a side effect.
type handlerFunc func(ctx context.Context, s *Server, req Request) Response

// Server accepts unix-socket connections and dispatches each framed
// request to its registered handler.
type Server struct {
	SockPath string
	Append   Appender
	Queries  *Queries
	Log      *slog.Logger

	RequestTimeout time.Duration

	// Shutdown is invoked by the Shutdown request handler to signal the
	// daemon's main goroutine to begin graceful teardown. Nil is a
	// valid no-op for tests that never call it.
	Shutdown func()

	handlers map[RequestType]handlerFunc
	ln       net.Listener
}

// New returns a Server with the full command dispatch table registered.
func New(sockPath string, appender Appender, queries *Queries, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		SockPath:       sockPath,
		Append:         appender,
		Queries:        queries,
		Log:            log,
		RequestTimeout: defaultRequestTimeout,
		handlers:       map[RequestType]handlerFunc{},
	}
	registerHandlers(s)
	return s
}

// Listen binds the unix socket, removing a stale socket file left by an
// unclean prior shutdown first.
func (s *Server) Listen() error {
	if err := removeStaleSocket(s.SockPath); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.SockPath)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		if conn, dialErr := net.DialTimeout("unix", path, 200*time.Millisecond); dialErr == nil {
			conn.Close()
			return errors.New("daemon socket already in use")
		}
		return os.Remove(path)
	}
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	_ = os.Remove(s.SockPath)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		body, err := readFrame(conn)
		if err != nil {
			return
		}
		resp := s.dispatch(ctx, body)
		data, err := marshalResponse(resp)
		if err != nil {
			s.Log.Error("marshal response", "err", err)
			return
		}
		if err := writeFrame(conn, data); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, body []byte) Response {
	req, err := decodeRequest(body)
	if err != nil {
		return errorResponse(err)
	}

	h, ok := s.handlers[req.Type]
	if !ok {
		return unknownCommandResponse(req)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.RequestTimeout)
	defer cancel()
	return h(reqCtx, s, req)
}

func (s *Server) on(t RequestType, h handlerFunc) {
	s.handlers[t] = h
}

// appendAndWake only forwards to s.Append; any bus wake is done by the
// Appender itself. The handlers call s.Append directly rather than
// this method.
func (s *Server) appendAndWake(kind eventlog.Kind, payload any) error {
	return s.Append(kind, payload)
}
