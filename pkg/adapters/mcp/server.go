package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/quotecraft/drew"
	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/observability"
	"github.com/quotecraft/drew/pkg/ports"
	"github.com/quotecraft/drew/pkg/runner"
	"github.com/quotecraft/drew/pkg/session"
)

// MachineURI is the resource holding the transition table.
const MachineURI = "drew://machine"

// TurnArgs are the arguments of the quote_turn tool. State and Context are
// whatever the previous call returned; both are omitted on the first turn.
type TurnArgs struct {
	State    domain.ConversationState `json:"state,omitempty"`
	Context  *domain.Context          `json:"context,omitempty"`
	Text     string                   `json:"text,omitempty"`
	Command  *domain.Command          `json:"command,omitempty"`
	Settings *domain.Settings         `json:"settings,omitempty"`
}

// ConversationArgs are the arguments of the conversation_turn tool.
type ConversationArgs struct {
	ID      string          `json:"id"`
	Text    string          `json:"text,omitempty"`
	Command *domain.Command `json:"command,omitempty"`
}

// ConversationResult pairs a stored conversation id with its latest turn.
type ConversationResult struct {
	ID       string                   `json:"id" jsonschema_description:"Conversation id to pass to conversation_turn"`
	Response *domain.Response         `json:"response" jsonschema_description:"The rendered turn"`
	Diff     *domain.ConversationDiff `json:"diff,omitempty" jsonschema_description:"What changed since the previous turn"`
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    ports.Dispatcher
	kb        ports.KnowledgeBase
	sessions  *session.Manager
	metrics   *observability.Metrics
	settings  domain.Settings
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithKnowledgeBase exposes the available job types through list_job_types.
func WithKnowledgeBase(kb ports.KnowledgeBase) Option {
	return func(s *Server) { s.kb = kb }
}

// WithSessions registers the start_conversation and conversation_turn tools.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) { s.sessions = m }
}

// WithMetrics counts turns under the "mcp" transport label.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithSettings sets the quote defaults used when a call carries none.
func WithSettings(settings domain.Settings) Option {
	return func(s *Server) { s.settings = settings }
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Dispatcher, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("drew-mcp", strings.TrimSpace(drew.Version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.logger.Info("MCP Server shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	turnTool := mcp.NewTool("quote_turn",
		mcp.WithDescription("Advance a quote-building conversation by one turn. Pass back the state and context returned by the previous call verbatim; omit both to start."),
		mcp.WithString("state", mcp.Description("Current conversation state (omit to start at the greeting)")),
		mcp.WithObject("context", mcp.Description("Conversation context returned by the previous turn")),
		mcp.WithString("text", mcp.Description("What the user said")),
		mcp.WithObject("command", mcp.Description(`Structured command, e.g. {"name":"set_labor","args":{"hours":4}}`)),
		mcp.WithObject("settings", mcp.Description("Quote defaults: default_labor_rate, default_markup_percent, currency")),
		mcp.WithOutputSchema[domain.Response](),
	)
	s.mcpServer.AddTool(turnTool, mcp.NewStructuredToolHandler(s.handleTurn))

	s.mcpServer.AddTool(mcp.NewTool("describe_machine",
		mcp.WithDescription("List every transition of the conversation state machine."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.engine.Describe())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("describe failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	if s.kb != nil {
		s.mcpServer.AddTool(mcp.NewTool("list_job_types",
			mcp.WithDescription("List the job types the tradecraft library knows."),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			jobs, err := s.kb.JobTypes(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("job types unavailable: %v", err)), nil
			}
			jsonBytes, _ := json.Marshal(jobs)
			return mcp.NewToolResultText(string(jsonBytes)), nil
		})
	}

	if s.sessions != nil {
		s.mcpServer.AddTool(mcp.NewTool("start_conversation",
			mcp.WithDescription("Start a stored conversation. The server keeps the context; continue it with conversation_turn."),
			mcp.WithObject("settings", mcp.Description("Quote defaults for the greeting")),
			mcp.WithOutputSchema[ConversationResult](),
		), mcp.NewStructuredToolHandler(s.handleStart))

		s.mcpServer.AddTool(mcp.NewTool("conversation_turn",
			mcp.WithDescription("Advance a stored conversation by one turn."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Conversation id from start_conversation")),
			mcp.WithString("text", mcp.Description("What the user said")),
			mcp.WithObject("command", mcp.Description("Structured command")),
			mcp.WithOutputSchema[ConversationResult](),
		), mcp.NewStructuredToolHandler(s.handleConversationTurn))
	}
}

func (s *Server) handleTurn(ctx context.Context, _ mcp.CallToolRequest, args TurnArgs) (domain.Response, error) {
	in, err := runner.SanitizeTurn(domain.Input{Text: args.Text, Command: args.Command})
	if err != nil {
		s.logger.Warn("MCP quote_turn: Input rejected", "err", err, "size", len(args.Text))
		return domain.Response{}, fmt.Errorf("input rejected: %w", err)
	}

	settings := s.settings
	if args.Settings != nil {
		settings = *args.Settings
	}
	resp, err := s.engine.Dispatch(ctx, domain.Request{
		State:    args.State,
		Context:  args.Context,
		Input:    in,
		Settings: settings,
	})
	s.observe(err)
	if err != nil {
		s.logger.Error("MCP quote_turn: Dispatch failed", "err", err)
		return domain.Response{}, fmt.Errorf("dispatch failed: %w", err)
	}
	return *resp, nil
}

type startArgs struct {
	Settings *domain.Settings `json:"settings,omitempty"`
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args startArgs) (ConversationResult, error) {
	settings := s.settings
	if args.Settings != nil {
		settings = *args.Settings
	}
	conv, resp, err := s.sessions.Start(ctx, s.engine, settings)
	s.observe(err)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("start failed: %w", err)
	}
	return ConversationResult{ID: conv.ID, Response: resp}, nil
}

func (s *Server) handleConversationTurn(ctx context.Context, _ mcp.CallToolRequest, args ConversationArgs) (ConversationResult, error) {
	if args.ID == "" {
		return ConversationResult{}, errors.New("id is required")
	}
	in, err := runner.SanitizeTurn(domain.Input{Text: args.Text, Command: args.Command})
	if err != nil {
		return ConversationResult{}, fmt.Errorf("input rejected: %w", err)
	}
	resp, diff, err := s.sessions.Turn(ctx, s.engine, args.ID, in, s.settings)
	s.observe(err)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("turn failed: %w", err)
	}
	return ConversationResult{ID: args.ID, Response: resp, Diff: diff}, nil
}

func (s *Server) observe(err error) {
	if s.metrics != nil {
		s.metrics.ObserveTurn("mcp", err)
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(MachineURI, "Conversation state machine",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Describe())
		if err != nil {
			return nil, fmt.Errorf("failed to describe machine: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      MachineURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
