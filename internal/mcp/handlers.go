package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/domain"
	"github.com/cds-reasoning-server/internal/service"
)

// Tool names.
const (
	ToolAnalyzeEncounter    = "analyze_encounter"
	ToolInterpretLab        = "interpret_lab"
	ToolInterpretLabPanel   = "interpret_lab_panel"
	ToolListReferenceRanges = "list_reference_ranges"
)

// ToolNames lists every registered tool.
var ToolNames = []string{ToolAnalyzeEncounter, ToolInterpretLab, ToolInterpretLabPanel, ToolListReferenceRanges}

// AnalyzeEncounterParams defines parameters for analyze_encounter tool
type AnalyzeEncounterParams struct {
	Patient   domain.PatientContext    `json:"patient"`
	Encounter domain.EncounterSnapshot `json:"encounter"`
}

// InterpretLabParams defines parameters for interpret_lab tool
type InterpretLabParams struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// InterpretLabPanelParams defines parameters for interpret_lab_panel tool
type InterpretLabPanelParams struct {
	PatientID   string           `json:"patient_id,omitempty"`
	EncounterID string           `json:"encounter_id,omitempty"`
	Tests       []domain.LabTest `json:"tests"`
}

// ListReferenceRangesParams defines parameters for list_reference_ranges tool
type ListReferenceRangesParams struct{}

// ReferenceRangeEntry is one row of the list_reference_ranges result.
type ReferenceRangeEntry struct {
	Test string `json:"test"`
	domain.LabReferenceRange
}

// handleAnalyzeEncounter handles the analyze_encounter tool invocation
func (s *Server) handleAnalyzeEncounter(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeEncounterParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAnalyzeEncounter).Info("Tool invoked")

	resp, err := s.service.AnalyzeEncounter(ctx, service.AnalysisRequest{
		UserID:    s.userID,
		Patient:   params.Patient,
		Encounter: params.Encounter,
	})
	if err != nil {
		return s.createErrorResult("Encounter analysis failed", err), nil, nil
	}
	return s.createJSONResult(resp)
}

// handleInterpretLab handles the interpret_lab tool invocation
func (s *Server) handleInterpretLab(ctx context.Context, req *mcp.CallToolRequest, params InterpretLabParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolInterpretLab).Info("Tool invoked")

	result, err := s.service.InterpretLab(ctx, domain.LabTest{Name: params.Name, Value: params.Value, Unit: params.Unit})
	if err != nil {
		return s.createErrorResult("Lab interpretation failed", err), nil, nil
	}
	return s.createJSONResult(result)
}

// handleInterpretLabPanel handles the interpret_lab_panel tool invocation
func (s *Server) handleInterpretLabPanel(ctx context.Context, req *mcp.CallToolRequest, params InterpretLabPanelParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":  ToolInterpretLabPanel,
		"tests": len(params.Tests),
	}).Info("Tool invoked")

	resp, err := s.service.InterpretPanel(ctx, service.PanelRequest{
		UserID:      s.userID,
		PatientID:   params.PatientID,
		EncounterID: params.EncounterID,
		Tests:       params.Tests,
	})
	if err != nil {
		return s.createErrorResult("Lab panel interpretation failed", err), nil, nil
	}
	return s.createJSONResult(resp)
}

// handleListReferenceRanges handles the list_reference_ranges tool invocation
func (s *Server) handleListReferenceRanges(ctx context.Context, req *mcp.CallToolRequest, params ListReferenceRangesParams) (*mcp.CallToolResult, any, error) {
	ranges := s.service.ReferenceRanges()

	entries := make([]ReferenceRangeEntry, 0, len(ranges))
	for name, ref := range ranges {
		entries = append(entries, ReferenceRangeEntry{Test: name, LabReferenceRange: ref})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Test < entries[j].Test })

	return s.createJSONResult(map[string]any{"reference_ranges": entries})
}

// createJSONResult renders a value as indented JSON text content.
func (s *Server) createJSONResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

// createErrorResult creates a standardized error result. Validation
// failures name the offending field.
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		errorText += fmt.Sprintf(" - invalid %s: %s", verr.Field, verr.Message)
	case err != nil:
		s.logger.WithError(err).Error(message)
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
