package worker

// roast_report_worker.go
// Renders the PDF report of a finished batch and mails it to the QC contact.

import (
	"context"
	"encoding/json"
	"fmt"

	"roastkit/internal/infra"
	"roastkit/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoastReportPayload is the job envelope sent to QueueRoastReport.
type RoastReportPayload struct {
	BatchID string `json:"batch_id"`
}

type RoastReportWorker struct {
	batches     repository.BatchRepository
	dispatcher  *Dispatcher
	storagePath string
	notifyEmail string
}

func NewRoastReportWorker(batches repository.BatchRepository, dispatcher *Dispatcher, storagePath, notifyEmail string) *RoastReportWorker {
	return &RoastReportWorker{
		batches:     batches,
		dispatcher:  dispatcher,
		storagePath: storagePath,
		notifyEmail: notifyEmail,
	}
}

func (w *RoastReportWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload RoastReportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("roast_report_worker: invalid payload: %w", err)
	}
	id, err := uuid.Parse(payload.BatchID)
	if err != nil {
		return fmt.Errorf("roast_report_worker: invalid batch_id %q", payload.BatchID)
	}

	batch, err := w.batches.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("roast_report_worker: load batch %s: %w", id, err)
	}
	if !batch.IsFinished() {
		// Nothing to report yet; not worth a retry.
		log.Warn().Str("batch_id", payload.BatchID).Msg("roast_report_worker: batch still in progress, skipping")
		return nil
	}

	path, err := infra.GenerateRoastReportPDF(batch, w.storagePath)
	if err != nil {
		return err
	}
	log.Info().Str("pdf", path).Str("batch_id", payload.BatchID).Msg("roast_report_worker: report generated")

	if w.notifyEmail == "" || w.dispatcher == nil {
		return nil
	}
	name := ""
	if batch.BeanVariety != nil {
		name = batch.BeanVariety.Name
	}
	email := EmailJobPayload{
		ToEmail:        w.notifyEmail,
		Subject:        fmt.Sprintf("Roast #%d ready for cupping: %s", batch.BatchNumber, name),
		Body:           fmt.Sprintf("Batch %s finished with %d g roasted. The roast report is attached.", batch.ID, derefInt(batch.ActualYield)),
		AttachmentPath: path,
	}
	if err := w.dispatcher.EnqueueEmail(ctx, email); err != nil {
		log.Warn().Err(err).Str("batch_id", payload.BatchID).Msg("roast_report_worker: failed to enqueue email")
	}
	return nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
