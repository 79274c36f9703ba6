// Package reports drives the asynchronous report workflow:
// submit a request, poll the job, resolve its document and decode it.
package reports

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/spapi"
)

const apiPrefix = "/reports/2021-06-30"

var errPending = errors.New("report still processing")

var invalidMarketplaceRe = regexp.MustCompile(`(?i)invalid\s+marketplace\s*ids?\b\W*([A-Z0-9]{5,})`)

// Caller is the subset of the request executor used here.
type Caller interface {
	Get(ctx context.Context, c spapi.Call) (*spapi.Response, error)
	Post(ctx context.Context, c spapi.Call) (*spapi.Response, error)
}

// DocumentDecoder materializes a resolved document.
type DocumentDecoder interface {
	Decode(ctx context.Context, ref model.DocumentRef) ([]model.RawRow, error)
}

// Options control polling. Zero values get defaults.
type Options struct {
	// MarketplaceIDs used by FetchReport when the caller gives none.
	MarketplaceIDs []string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	// StatusTimeout bounds each individual status call.
	StatusTimeout time.Duration
}

// Orchestrator runs report jobs to completion.
type Orchestrator struct {
	api  Caller
	docs DocumentDecoder
	opts Options
	log  *zap.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(api Caller, docs DocumentDecoder, opts Options, log *zap.Logger) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 180 * time.Second
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{api: api, docs: docs, opts: opts, log: log}
}

// Request describes one report fetch.
type Request struct {
	AccountID      int64
	Credential     string
	ReportType     string
	MarketplaceIDs []string
	Start          time.Time
	End            time.Time
}

// FetchReport fetches a report for the default marketplaces.
func (o *Orchestrator) FetchReport(ctx context.Context, accountID int64, credential, reportType string, start, end time.Time) ([]model.RawRow, error) {
	return o.Fetch(ctx, Request{
		AccountID:  accountID,
		Credential: credential,
		ReportType: reportType,
		Start:      start,
		End:        end,
	})
}

// Fetch runs submit → poll → resolve → decode strictly in sequence.
// A report type the platform currently refuses yields no rows and no error.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) ([]model.RawRow, error) {
	ids := req.MarketplaceIDs
	if len(ids) == 0 {
		ids = o.opts.MarketplaceIDs
	}
	job := &model.ReportJob{
		CorrelationID:  uuid.Must(uuid.NewV4()),
		ReportType:     NormalizeReportType(req.ReportType),
		MarketplaceIDs: append([]string(nil), ids...),
		WindowStart:    req.Start,
		WindowEnd:      req.End,
	}
	log := o.log.With(
		zap.Int64("account", req.AccountID),
		zap.String("report_type", job.ReportType),
		zap.String("job", job.CorrelationID.String()),
	)

	accepted, err := o.Submit(ctx, req.AccountID, req.Credential, job)
	if err != nil {
		return nil, err
	}
	if !accepted {
		log.Info("report type not available right now, skipping")
		return nil, nil
	}
	log.Info("report submitted", zap.String("report_id", job.ReportID), zap.Strings("marketplaces", job.MarketplaceIDs))

	if err := o.Poll(ctx, req.AccountID, req.Credential, job); err != nil {
		log.Warn("report job did not succeed", zap.String("report_id", job.ReportID), zap.Error(err))
		return nil, err
	}
	if job.ReportDocumentID == "" {
		return nil, &errs.ReportFailedError{
			ReportID: job.ReportID, ReportType: job.ReportType, Status: job.ProcessingStatus, Cause: errs.ErrNoDocument,
		}
	}

	ref, err := o.ResolveDocument(ctx, req.AccountID, req.Credential, job.ReportDocumentID)
	if err != nil {
		return nil, err
	}
	if ref.URL == "" {
		log.Warn("document without url", zap.String("document", ref.DocumentID))
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := o.docs.Decode(ctx, ref)
	if err != nil {
		return nil, err
	}
	log.Info("report decoded", zap.String("report_id", job.ReportID), zap.Int("rows", len(rows)))
	return rows, nil
}

// Submit posts the report request, tolerating the platform's known
// complaints. It reports false when the type is temporarily not allowed.
// On success job.ReportID is set and job.MarketplaceIDs reflects what was sent.
func (o *Orchestrator) Submit(ctx context.Context, accountID int64, credential string, job *model.ReportJob) (bool, error) {
	ids := append([]string(nil), job.MarketplaceIDs...)
	withIDs := len(ids) > 0
	droppedField := false

	for {
		body := map[string]any{
			"reportType":    job.ReportType,
			"dataStartTime": spapi.FormatTime(job.WindowStart),
			"dataEndTime":   spapi.FormatTime(job.WindowEnd),
		}
		if withIDs {
			body["marketplaceIds"] = ids
		}
		resp, err := o.api.Post(ctx, spapi.Call{
			AccountID:  accountID,
			Credential: credential,
			Path:       apiPrefix + "/reports",
			Body:       body,
		})
		if err == nil {
			id := pick(resp, "reportId")
			if id == "" {
				return false, &errs.ReportFailedError{ReportType: job.ReportType, Status: "SUBMIT", Cause: errors.New("response without reportId")}
			}
			job.ReportID = id
			job.ProcessingStatus = model.StatusSubmitted
			if withIDs {
				job.MarketplaceIDs = ids
			} else {
				job.MarketplaceIDs = nil
			}
			return true, nil
		}

		var ae *errs.RemoteAPIError
		if !errors.As(err, &ae) {
			return false, err
		}
		switch {
		case ae.Mentions("not allowed at this time"):
			return false, nil
		case withIDs && !droppedField && ae.Mentions("marketplaceids", "missing"):
			o.log.Info("retrying report request without marketplaceIds", zap.Int64("account", accountID))
			withIDs, droppedField = false, true
			continue
		}
		if withIDs {
			if bad := invalidMarketplace(ae.Detail, ids); bad != "" {
				ids = without(ids, bad)
				o.log.Info("dropping rejected marketplace", zap.Int64("account", accountID), zap.String("marketplace", bad))
				if len(ids) == 0 {
					return false, err
				}
				continue
			}
		}
		return false, err
	}
}

// Poll waits until the job reaches a terminal status or the poll timeout
// elapses. Each status call is bounded by StatusTimeout.
func (o *Orchestrator) Poll(ctx context.Context, accountID int64, credential string, job *model.ReportJob) error {
	start := time.Now()
	b := retry.WithMaxDuration(o.opts.PollTimeout, retry.NewConstant(o.opts.PollInterval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		status, docID, err := o.Status(ctx, accountID, credential, job.ReportID)
		if err != nil {
			return err
		}
		job.ProcessingStatus = status
		job.ReportDocumentID = docID
		if model.TerminalStatus(status) {
			return nil
		}
		return retry.RetryableError(errPending)
	})
	switch {
	case errors.Is(err, errPending):
		return &errs.ReportTimeoutError{
			ReportID: job.ReportID, ReportType: job.ReportType, LastStatus: job.ProcessingStatus, Waited: time.Since(start),
		}
	case err != nil:
		return err
	case job.ProcessingStatus != model.StatusDone:
		return &errs.ReportFailedError{ReportID: job.ReportID, ReportType: job.ReportType, Status: job.ProcessingStatus}
	}
	return nil
}

// Status fetches the current processing status and document id of a report.
func (o *Orchestrator) Status(ctx context.Context, accountID int64, credential, reportID string) (status, documentID string, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.StatusTimeout)
	defer cancel()
	resp, err := o.api.Get(ctx, spapi.Call{
		AccountID:  accountID,
		Credential: credential,
		Path:       fmt.Sprintf("%s/reports/%s", apiPrefix, reportID),
	})
	if err != nil {
		return "", "", err
	}
	return pick(resp, "processingStatus"), pick(resp, "reportDocumentId"), nil
}

// ResolveDocument fetches the download descriptor of a report document.
func (o *Orchestrator) ResolveDocument(ctx context.Context, accountID int64, credential, documentID string) (model.DocumentRef, error) {
	resp, err := o.api.Get(ctx, spapi.Call{
		AccountID:  accountID,
		Credential: credential,
		Path:       fmt.Sprintf("%s/documents/%s", apiPrefix, documentID),
	})
	if err != nil {
		return model.DocumentRef{}, err
	}
	return model.DocumentRef{
		DocumentID:           documentID,
		URL:                  pick(resp, "url"),
		EncryptionKey:        pick(resp, "encryptionDetails.key"),
		EncryptionIV:         pick(resp, "encryptionDetails.initializationVector"),
		CompressionAlgorithm: pick(resp, "compressionAlgorithm"),
	}, nil
}

// pick reads a field from either the bare body or the legacy payload envelope.
func pick(resp *spapi.Response, path string) string {
	if v := resp.JSON(path); v.Exists() {
		return v.String()
	}
	return resp.JSON("payload." + path).String()
}

// invalidMarketplace returns the marketplace id the error complains about,
// if it is one of ids.
func invalidMarketplace(detail string, ids []string) string {
	for _, m := range invalidMarketplaceRe.FindAllStringSubmatch(detail, -1) {
		for _, id := range ids {
			if strings.EqualFold(m[1], id) {
				return id
			}
		}
	}
	return ""
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
