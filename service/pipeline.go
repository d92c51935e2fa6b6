package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/harshraj78/legal-check-ai/model"
	"github.com/harshraj78/legal-check-ai/pkg/logger"
)

// Stage names a step of the pipeline, used in failure reasons and logs.
type Stage string

const (
	StageLoad     Stage = "load"
	StageBlob     Stage = "blob"
	StageExtract  Stage = "extract"
	StageAnalyze  Stage = "analyze"
	StagePersist  Stage = "persist"
	StageInternal Stage = "internal"
)

// stageFailure is the failure result of a stage. The driver turns it into a
// failed transition.
type stageFailure struct {
	stage Stage
	cause error
}

func fail(stage Stage, cause error) *stageFailure {
	return &stageFailure{stage: stage, cause: cause}
}

func (f *stageFailure) reason() string {
	return fmt.Sprintf("%s: %v", f.stage, f.cause)
}

const defaultWriteTimeout = 10 * time.Second

// Pipeline takes a pending contract through extraction and analysis to a
// terminal status.
type Pipeline struct {
	store           *ContractStore
	blobs           BlobStore
	extractor       Extractor
	analyzer        Analyzer
	analysisTimeout time.Duration
	writeTimeout    time.Duration
}

func NewPipeline(store *ContractStore, blobs BlobStore, extractor Extractor, analyzer Analyzer, analysisTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:           store,
		blobs:           blobs,
		extractor:       extractor,
		analyzer:        analyzer,
		analysisTimeout: analysisTimeout,
		writeTimeout:    defaultWriteTimeout,
	}
}

// Run processes one contract. It never returns an error: every outcome is
// recorded on the contract itself. A contract that is missing or no longer
// pending is left untouched.
func (p *Pipeline) Run(ctx context.Context, id string) {
	ctx = logger.WithContractID(ctx, id)
	log := logger.WithContext(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic recovered", "error", r, "stack", string(debug.Stack()))
			p.markFailed(ctx, id, fail(StageInternal, fmt.Errorf("panic: %v", r)))
		}
	}()

	c, err := p.store.Get(ctx, id)
	if errors.Is(err, ErrContractNotFound) {
		log.Warn("contract not found, nothing to process")
		return
	}
	if err != nil {
		p.markFailed(ctx, id, fail(StageLoad, err))
		return
	}
	if c.Status != model.StatusPending {
		log.Warn("contract is not pending, skipping", "status", c.Status)
		return
	}

	if err := p.store.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, ErrContractNotFound) || errors.Is(err, ErrInvalidTransition) {
			log.Warn("contract changed before processing started", "error", err)
			return
		}
		p.markFailed(ctx, id, fail(StageLoad, err))
		return
	}
	log.Info("contract processing started", "filename", c.Filename)

	payload, failure := p.process(ctx, c)
	if failure != nil {
		p.markFailed(ctx, id, failure)
		return
	}

	wctx, cancel := p.terminalContext(ctx)
	defer cancel()
	result, err := p.store.Complete(wctx, id, payload)
	if err != nil {
		p.markFailed(ctx, id, fail(StagePersist, err))
		return
	}

	log.Info("contract processing completed",
		"risk_score", result.RiskScore,
		"high_risk_clauses", len(result.HighRiskClauses),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (p *Pipeline) process(ctx context.Context, c *model.Contract) (*AnalysisPayload, *stageFailure) {
	data, err := p.blobs.Load(ctx, c.BlobKey)
	if err != nil {
		return nil, fail(StageBlob, err)
	}

	ext, err := p.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fail(StageExtract, err)
	}
	if err := p.store.SaveRawText(ctx, c.ID, ext.Text, ext.Pages); err != nil {
		return nil, fail(StagePersist, err)
	}
	logger.Debug(ctx, "text extracted", "pages", ext.Pages, "chars", len(ext.Text))

	payload, err := p.analyze(ctx, ext.Text)
	if err != nil {
		return nil, fail(StageAnalyze, err)
	}
	return payload, nil
}

// analyze bounds the engine call by analysisTimeout, even for an Analyzer
// that ignores its context.
func (p *Pipeline) analyze(ctx context.Context, text string) (*AnalysisPayload, error) {
	if p.analysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.analysisTimeout)
		defer cancel()
	}

	type outcome struct {
		payload *AnalysisPayload
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("analyzer panic: %v", r)}
			}
		}()
		payload, err := p.analyzer.Analyze(ctx, text)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil && o.payload == nil {
			return nil, invalidResponse(errors.New("engine returned no payload"))
		}
		return o.payload, o.err
	case <-ctx.Done():
		return nil, engineUnavailable(fmt.Errorf("analysis timed out: %w", ctx.Err()))
	}
}

func (p *Pipeline) markFailed(ctx context.Context, id string, f *stageFailure) {
	log := logger.WithContext(ctx)
	log.Error("contract processing failed", "stage", f.stage, "error", f.cause)

	wctx, cancel := p.terminalContext(ctx)
	defer cancel()
	if err := p.store.MarkFailed(wctx, id, f.reason()); err != nil {
		log.Error("failed to record failure", "stage", f.stage, "error", err)
	}
}

// terminalContext survives cancellation of ctx so a shutdown cannot leave a
// contract in processing.
func (p *Pipeline) terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout)
}
