package dto

import "github.com/noah-isme/invigilation-api/internal/models"

// RosterExportRequest captures POST /exports/roster payload.
type RosterExportRequest struct {
	From   string              `json:"from" validate:"required"`
	To     string              `json:"to" validate:"required"`
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
