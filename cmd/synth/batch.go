package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/consolidator"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/document"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/export"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/pipeline"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/config"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/storage"
)

// BatchResult describes one completed batch.
type BatchResult struct {
	Dataset   *consolidator.Dataset
	Artifacts []*storage.ArtifactInfo
	Copied    int64
}

// summary is the JSON artifact stored next to the dataset.
type summary struct {
	RunID          uuid.UUID                          `json:"run_id"`
	Family         string                             `json:"family"`
	Source         string                             `json:"source"`
	Year           int                                `json:"year"`
	Rows           int                                `json:"rows"`
	CreatedAt      time.Time                          `json:"created_at"`
	Provenance     []consolidator.ColumnProvenance    `json:"provenance"`
	Reconciliation []consolidator.GroupReconciliation `json:"reconciliation"`
	CategoryTotals []consolidator.CategoryTotal       `json:"category_totals"`
	Audit          *dataset.Audit                     `json:"audit"`
}

// RunBatch fetches the configured source, synthesizes it and emits every
// configured artifact. Errors are fatal to the batch except a failed metrics
// push, which is only logged. The database copy runs before any artifact is
// stored, so a failed copy leaves storage untouched.
func (d *Dependencies) RunBatch(ctx context.Context) (*BatchResult, error) {
	ds, err := d.synthesize(ctx)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Dataset: ds}

	if d.Sink != nil {
		result.Copied, err = d.Sink.Write(ctx, ds)
		if err != nil {
			return nil, err
		}
	}

	result.Artifacts, err = d.storeArtifacts(ctx, ds)
	if err != nil {
		return nil, err
	}

	if d.Pusher != nil && d.Pusher.Enabled() {
		if err := d.Pusher.Push(ctx, d.Metrics.Registry(), map[string]string{"family": d.Family.Name}); err != nil {
			d.Logger.Warn("metrics push failed",
				slog.String("run_id", ds.RunID.String()),
				slog.Any("error", err),
			)
		}
	}

	d.Logger.Info("batch completed",
		slog.String("run_id", ds.RunID.String()),
		slog.Int("rows", len(ds.Records)),
		slog.Int("artifacts", len(result.Artifacts)),
		slog.Int("warnings", len(ds.Warnings)),
	)
	return result, nil
}

func (d *Dependencies) synthesize(ctx context.Context) (*consolidator.Dataset, error) {
	run := d.Config.Run
	opts := pipeline.RunOptions{Year: run.Year, Seed: run.Seed}

	data, err := document.Fetch(ctx, d.HTTPClient, run.Source)
	if err != nil {
		return nil, err
	}

	if run.Category != "" {
		category, err := dataset.ParseCategory(run.Category)
		if err != nil {
			return nil, err
		}
		return d.Pipeline.RunCanonicalCSV(ctx, bytes.NewReader(data), category, opts)
	}

	src, err := document.Open(data, document.Options{Logger: d.Logger})
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return d.Pipeline.Run(ctx, src, opts)
}

type artifact struct {
	name        string
	contentType string
	write       func(io.Writer) error
}

func (d *Dependencies) artifacts(ds *consolidator.Dataset) []artifact {
	run := d.Config.Run
	var out []artifact
	if run.WantsFormat(config.FormatCSV) {
		out = append(out, artifact{
			name:        fmt.Sprintf("becas_%d.csv", ds.Year),
			contentType: storage.ContentTypeCSV,
			write:       func(w io.Writer) error { return export.WriteCSV(w, ds) },
		})
	}
	if run.WantsFormat(config.FormatXLSX) {
		out = append(out, artifact{
			name:        fmt.Sprintf("becas_%d.xlsx", ds.Year),
			contentType: storage.ContentTypeXLSX,
			write:       func(w io.Writer) error { return export.WriteWorkbook(w, ds) },
		})
	}
	out = append(out,
		artifact{
			name:        fmt.Sprintf("procedencia_%d.csv", ds.Year),
			contentType: storage.ContentTypeCSV,
			write:       func(w io.Writer) error { return export.WriteProvenanceCSV(w, ds) },
		},
		artifact{
			name:        "resumen.json",
			contentType: storage.ContentTypeJSON,
			write:       func(w io.Writer) error { return d.writeSummary(w, ds) },
		},
	)
	return out
}

func (d *Dependencies) storeArtifacts(ctx context.Context, ds *consolidator.Dataset) ([]*storage.ArtifactInfo, error) {
	var infos []*storage.ArtifactInfo
	for _, a := range d.artifacts(ds) {
		var buf bytes.Buffer
		if err := a.write(&buf); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", a.name, err)
		}
		info, err := d.Storage.Put(ctx, ds.RunID, a.name, a.contentType, &buf)
		if err != nil {
			return nil, fmt.Errorf("failed to store %s: %w", a.name, err)
		}
		d.Logger.Debug("artifact stored",
			slog.String("name", info.Name),
			slog.Int64("size", info.Size),
			slog.String("path", info.Path),
		)
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *Dependencies) writeSummary(w io.Writer, ds *consolidator.Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary{
		RunID:          ds.RunID,
		Family:         d.Family.Name,
		Source:         d.Config.Run.Source,
		Year:           ds.Year,
		Rows:           len(ds.Records),
		CreatedAt:      ds.CreatedAt,
		Provenance:     ds.Provenance,
		Reconciliation: ds.Reconciliation,
		CategoryTotals: ds.CategoryTotals,
		Audit:          ds.Audit,
	})
}
