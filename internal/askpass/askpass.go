// Package askpass relays credential prompts from git subprocesses back to
// the worker that started them.
//
// For each network operation the worker starts a Server on a unix socket
// and runs git with GIT_ASKPASS pointing at "weft askpass". That command
// connects to the socket named in its environment, sends the prompt and
// prints the answer for git to read.
package askpass

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/weft/internal/logger"
)

const (
	// SocketEnv names the socket an askpass client connects to.
	SocketEnv = "WEFT_ASKPASS_SOCKET"

	// SocketReadTimeout bounds each read so a handler notices Close.
	SocketReadTimeout = 10 * time.Second

	// SocketWriteTimeout bounds writes to a client.
	SocketWriteTimeout = 10 * time.Second
)

// Request is sent by the askpass client.
type Request struct {
	Prompt string `json:"prompt"`
}

// Response is the server's answer. OK is false if no answer is known.
type Response struct {
	Answer string `json:"answer,omitempty"`
	OK     bool   `json:"ok"`
}

// Handler answers prompts. It must be safe for concurrent use.
type Handler interface {
	Answer(prompt string) (string, bool)
}

// Responses answers prompts from a fixed table and remembers the ones it
// could not answer.
type Responses struct {
	mu         sync.Mutex
	answers    map[string]string
	unanswered []string
}

// NewResponses returns a handler answering from answers, keyed by prompt.
func NewResponses(answers map[string]string) *Responses {
	return &Responses{answers: answers}
}

func (r *Responses) Answer(prompt string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.answers[prompt]; ok {
		return a, true
	}
	if !slices.Contains(r.unanswered, prompt) {
		r.unanswered = append(r.unanswered, prompt)
	}
	return "", false
}

// Unanswered returns the prompts seen without an answer, in arrival order.
func (r *Responses) Unanswered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.unanswered)
}

// Server listens for askpass clients on a unix socket.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	closed     bool
	closedMu   sync.RWMutex
	wg         sync.WaitGroup
	log        *slog.Logger
}

// NewServer listens on a fresh socket in the temp directory.
func NewServer(handler Handler) (*Server, error) {
	// Unix socket paths are limited to ~104 bytes, keep the name short.
	socketPath := filepath.Join(os.TempDir(), "weft-"+uuid.NewString()[:12]+".sock")
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on askpass socket: %w", err)
	}
	log := logger.ComponentLogger("Askpass").With("socketPath", socketPath)
	log.Debug("listening")

	return &Server{
		socketPath: socketPath,
		listener:   listener,
		handler:    handler,
		log:        log,
	}, nil
}

// SocketPath returns the socket clients connect to.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Env returns the environment that makes git and ssh prompt through this
// server. executable is the weft binary.
func (s *Server) Env(executable string) []string {
	askpass := executable + " askpass"
	if strings.ContainsAny(executable, " \t") {
		askpass = `"` + executable + `" askpass`
	}
	return []string{
		SocketEnv + "=" + s.socketPath,
		"GIT_ASKPASS=" + askpass,
		"SSH_ASKPASS=" + askpass,
		"SSH_ASKPASS_REQUIRE=force",
		"GIT_TERMINAL_PROMPT=0",
	}
}

// Start runs the accept loop in a goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Server) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		if s.isClosed() {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.log.Warn("accept error (continuing)", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		if s.isClosed() {
			return
		}
		conn.SetReadDeadline(time.Now().Add(SocketReadTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.log.Error("JSON parse error", "error", err)
			continue
		}
		answer, ok := s.handler.Answer(req.Prompt)
		s.log.Info("answered prompt", "prompt", req.Prompt, "ok", ok)

		data, err := json.Marshal(Response{Answer: answer, OK: ok})
		if err != nil {
			s.log.Error("failed to marshal response", "error", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(SocketWriteTimeout))
		if _, err := conn.Write(append(data, '\n')); err != nil {
			s.log.Error("write error", "error", err)
			return
		}
	}
}

// Close stops accepting, waits for in-flight exchanges and removes the socket.
func (s *Server) Close() error {
	s.closedMu.Lock()
	s.closed = true
	s.closedMu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()

	if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		s.log.Warn("failed to remove socket file", "error", removeErr)
	}
	return err
}

// Ask sends prompt to the server at socketPath and returns its answer.
func Ask(socketPath, prompt string) (string, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("connect to askpass socket: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	conn.SetWriteDeadline(time.Now().Add(SocketWriteTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("write askpass request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read askpass response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("no answer for %q", prompt)
	}
	return resp.Answer, nil
}
