// Package mcp exposes the analysis service as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/domain"
	"github.com/cds-reasoning-server/internal/service"
)

// DefaultUserID is recorded on audit entries written through the MCP server.
const DefaultUserID = "mcp-client"

// AnalysisService is the subset of the service layer the tools call.
type AnalysisService interface {
	AnalyzeEncounter(ctx context.Context, req service.AnalysisRequest) (*service.AnalysisResponse, error)
	InterpretLab(ctx context.Context, test domain.LabTest) (domain.LabInterpretation, error)
	InterpretPanel(ctx context.Context, req service.PanelRequest) (*service.PanelResponse, error)
	ReferenceRanges() map[string]domain.LabReferenceRange
}

// Server represents the clinical decision support MCP server
type Server struct {
	mcpServer *mcp.Server
	service   AnalysisService
	userID    string
	logger    *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server)

// WithUserID sets the user recorded on audit entries.
func WithUserID(userID string) ServerOption {
	return func(s *Server) {
		if userID != "" {
			s.userID = userID
		}
	}
}

// NewServer creates a new MCP server instance with every tool registered.
func NewServer(svc AnalysisService, logger *logrus.Logger, opts ...ServerOption) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("analysis service is required")
	}

	serverInfo := &mcp.Implementation{
		Name:    "cds-reasoning-server",
		Version: "v1.0.0",
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		service:   svc,
		userID:    DefaultUserID,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s, nil
}

// Run serves MCP requests over the given transport until ctx is cancelled
// or the client disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("Starting clinical decision support MCP server")

	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunStdio serves MCP requests over stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// registerTools registers every tool with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolAnalyzeEncounter,
		Description: "Analyze a patient encounter (chief complaint, structured symptoms, vitals and red flags) " +
			"and return possible conditions with ICD-10 codes, a risk level, red flags, follow-up questions and a summary. " +
			"Decision support only; not a diagnosis.",
	}, s.handleAnalyzeEncounter)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolInterpretLab,
		Description: "Interpret a single lab value against its reference range and report status, severity, possible causes, recommendations and urgency.",
	}, s.handleInterpretLab)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolInterpretLabPanel,
		Description: "Interpret a panel of lab values and summarize critical and urgent findings.",
	}, s.handleInterpretLabPanel)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListReferenceRanges,
		Description: "List the lab tests with known reference ranges, their units and critical thresholds.",
	}, s.handleListReferenceRanges)

	s.logger.WithField("tool_count", len(ToolNames)).Info("Registered MCP tools")
}
