package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/lpkunpack/internal/config"
	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB // nil when the ledger is disabled
	cfg    *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{db: db, cfg: cfg, logger: logger}
}

// Request types for each tool

// ExtractRequest represents the arguments for lpk_extract.
type ExtractRequest struct {
	Target         string `json:"target"`
	OutputDir      string `json:"output_dir,omitempty"`
	SecretsFile    string `json:"secrets_file,omitempty"`
	Jobs           int    `json:"jobs,omitempty"`
	StrictVariants bool   `json:"strict_variants,omitempty"`
	Report         string `json:"report,omitempty"`
}

// InspectRequest represents the arguments for lpk_inspect.
type InspectRequest struct {
	Target string `json:"target"`
}

// HistoryRequest represents the arguments for lpk_history.
type HistoryRequest struct {
	RunID   string `json:"run_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Archive string `json:"archive,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// PurgeRequest represents the arguments for lpk_purge.
type PurgeRequest struct {
	OlderThanDays *int    `json:"older_than_days,omitempty"`
	Status        *string `json:"status,omitempty"`
}

// HandleExtract handles the lpk_extract tool call. There is no operator
// on the other end, so file id recovery never prompts.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExtractRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Extract(ctx, h.db, h.cfg, ops.ExtractInput{
		Target:         input.Target,
		OutputDir:      input.OutputDir,
		SecretsFile:    input.SecretsFile,
		Jobs:           input.Jobs,
		StrictVariants: input.StrictVariants,
		ReportFormat:   input.Report,
		Logger:         h.logger,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleInspect handles the lpk_inspect tool call.
func (h *Handlers) HandleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InspectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Inspect(ctx, ops.InspectInput{Target: input.Target})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistory handles the lpk_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.db == nil {
		return errorResult(errLedgerDisabled()), nil
	}

	if input.RunID != "" {
		result, err := ops.ShowRun(h.db, input.RunID)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}

	result, err := ops.History(h.db, ops.HistoryInput{
		Status:  input.Status,
		Archive: input.Archive,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the lpk_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.db == nil {
		return errorResult(errLedgerDisabled()), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{
		OlderThanDays: input.OlderThanDays,
		Status:        input.Status,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

func errLedgerDisabled() error {
	return errors.NewInvalidRequest("run ledger is disabled")
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var uErr *errors.UnpackError
	if stderrors.As(err, &uErr) {
		msg := uErr.Message
		switch {
		case uErr.Code == errors.ErrInternal:
			msg = "an internal error occurred"
		case err != error(uErr):
			// Keep the wrapper's context.
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    uErr.Code,
			"message": msg,
		}
		if uErr.Stage != "" {
			errorObj["stage"] = uErr.Stage
		}
		if uErr.Code != errors.ErrInternal && uErr.Details != nil {
			errorObj["details"] = uErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
