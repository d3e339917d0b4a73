package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/dermscan/internal/classifier"
	"github.com/example/dermscan/internal/decision"
	"github.com/example/dermscan/internal/logging"
	"github.com/example/dermscan/internal/reference"
	"github.com/example/dermscan/internal/repository"
	"github.com/example/dermscan/internal/retry"
)

// PredictionStore defines the persistence operations needed by the use case.
type PredictionStore interface {
	Insert(ctx context.Context, ownerUserID, imageReference, primaryLabel string) (string, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]repository.PredictionRecord, error)
	FindByID(ctx context.Context, recordID, requestingUserID string) (*repository.PredictionRecord, error)
	DeleteIfOwned(ctx context.Context, recordID, requestingUserID string) error
	SummarizeByOwner(ctx context.Context, ownerUserID string) ([]repository.LabelCount, error)
}

// ImageStore keeps uploaded images.
type ImageStore interface {
	Save(ctx context.Context, ext string, data []byte) (string, error)
	Remove(ref string) error
}

// Options holds the decision parameters.
type Options struct {
	Catalog   []string
	Threshold float64
	TopK      int
	ResultTTL time.Duration
}

// Alternative is one ranked label with its reference page.
type Alternative struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	URL         string  `json:"url"`
}

// Result is what callers render. Verdict and Alternatives are only present
// while the full result is cached; older results fall back to the stored
// record alone.
type Result struct {
	Record       repository.PredictionRecord `json:"record"`
	Verdict      *decision.Verdict           `json:"verdict,omitempty"`
	Alternatives []Alternative               `json:"alternatives,omitempty"`
	ReferenceURL string                      `json:"reference_url,omitempty"`
}

// PredictionUseCase runs the classify, decide and persist flow and serves
// a user's history.
type PredictionUseCase struct {
	store      PredictionStore
	images     ImageStore
	cache      Cache
	classifier classifier.Client
	resolver   *reference.Resolver
	opts       Options
	logger     *zap.Logger
	policy     retry.Policy
}

// NewPredictionUseCase constructs a new use case instance.
func NewPredictionUseCase(store PredictionStore, images ImageStore, cache Cache, clf classifier.Client, resolver *reference.Resolver, opts Options, logger *zap.Logger) *PredictionUseCase {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 5 * time.Minute
	}
	return &PredictionUseCase{
		store:      store,
		images:     images,
		cache:      cache,
		classifier: clf,
		resolver:   resolver,
		opts:       opts,
		logger:     logger.Named("prediction_usecase"),
		policy:     retry.DefaultPolicy,
	}
}

// TopK is the number of alternatives shown per result.
func (uc *PredictionUseCase) TopK() int {
	return uc.opts.TopK
}

// Predict classifies an uploaded image, records the outcome for userID and
// returns the full result.
func (uc *PredictionUseCase) Predict(ctx context.Context, userID, ext string, image []byte) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	probs, err := uc.classifier.Classify(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Error("classification failed", zap.Error(wrapped))
		return nil, wrapped
	}

	verdict, err := decision.Decide(probs, uc.opts.Catalog, uc.opts.Threshold, uc.opts.TopK)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decide", requestID, err)
		opLogger.Error("classifier output rejected", zap.Error(wrapped), zap.Int("vector_len", len(probs)))
		return nil, wrapped
	}

	imageRef, err := uc.images.Save(ctx, ext, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.save_image", requestID, err)
		opLogger.Error("failed to store image", zap.Error(wrapped))
		return nil, wrapped
	}

	recordID, err := uc.store.Insert(ctx, userID, imageRef, verdict.PrimaryLabel)
	if err != nil {
		if rmErr := uc.images.Remove(imageRef); rmErr != nil {
			opLogger.Warn("failed to remove orphaned image", zap.Error(rmErr), zap.String("image", imageRef))
		}
		wrapped := logging.NewOperationError("usecase.insert_record", requestID, err)
		opLogger.Error("failed to persist prediction", zap.Error(wrapped))
		return nil, wrapped
	}

	record := repository.PredictionRecord{
		ID:             recordID,
		OwnerUserID:    userID,
		ImageReference: imageRef,
		PrimaryLabel:   verdict.PrimaryLabel,
		CreatedAt:      time.Now().UTC(),
	}
	if stored, err := uc.store.FindByID(ctx, recordID, userID); err == nil {
		record = *stored
	} else {
		opLogger.Warn("failed to reload stored prediction", zap.Error(err))
	}

	result := &Result{
		Record:       record,
		Verdict:      &verdict,
		Alternatives: uc.alternatives(verdict),
		ReferenceURL: uc.primaryURL(verdict.PrimaryLabel),
	}

	opLogger.Info("prediction recorded",
		zap.String("record_id", recordID),
		zap.Bool("unknown", verdict.Unknown),
		zap.String("primary_label", verdict.PrimaryLabel),
		zap.Float64("confidence", verdict.Confidence))

	uc.cacheResult(ctx, requestID, result)
	return result, nil
}

// Get returns one of userID's results. The store decides existence and
// ownership; a cached entry only restores the verdict and alternatives.
func (uc *PredictionUseCase) Get(ctx context.Context, userID, recordID string) (*Result, error) {
	rec, err := uc.store.FindByID(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}
	result := uc.fromRecord(*rec)

	opLogger := logging.WithOperation(uc.logger, "usecase.get", recordID)
	cached, err := uc.cacheGet(ctx, recordID, resultCacheKey(recordID))
	switch {
	case err == nil:
		var full Result
		if err := json.Unmarshal([]byte(cached), &full); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
			break
		}
		if full.Record.ID != rec.ID || full.Record.OwnerUserID != rec.OwnerUserID {
			opLogger.Warn("cached result does not match stored record")
			break
		}
		result.Verdict = full.Verdict
		result.Alternatives = full.Alternatives
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}
	return result, nil
}

// List returns userID's results, newest first.
func (uc *PredictionUseCase) List(ctx context.Context, userID string) ([]Result, error) {
	records, err := uc.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(records))
	for i, rec := range records {
		out[i] = *uc.fromRecord(rec)
	}
	return out, nil
}

// Delete removes a record owned by userID and evicts its cached result.
func (uc *PredictionUseCase) Delete(ctx context.Context, userID, recordID string) error {
	if err := uc.store.DeleteIfOwned(ctx, recordID, userID); err != nil {
		return err
	}
	err := retry.Do(ctx, uc.logger, uc.policy, "cache.del.result", recordID, func() error {
		return uc.cache.Del(ctx, resultCacheKey(recordID))
	})
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.delete", recordID).Warn("failed to evict cached result", zap.Error(err))
	}
	return nil
}

func (uc *PredictionUseCase) fromRecord(rec repository.PredictionRecord) *Result {
	return &Result{Record: rec, ReferenceURL: uc.primaryURL(rec.PrimaryLabel)}
}

func (uc *PredictionUseCase) alternatives(v decision.Verdict) []Alternative {
	ranked := v.Padded(uc.opts.TopK)
	out := make([]Alternative, len(ranked))
	for i, r := range ranked {
		out[i] = Alternative{Label: r.Label, Probability: r.Probability, URL: uc.resolver.ResolveURL(r.Label)}
	}
	return out
}

func (uc *PredictionUseCase) primaryURL(label string) string {
	if label == decision.UnknownLabel {
		return ""
	}
	return uc.resolver.ResolveURL(label)
}

func (uc *PredictionUseCase) cacheResult(ctx context.Context, requestID string, result *Result) {
	opLogger := logging.WithOperation(uc.logger, "usecase.cache_result", requestID)
	serialized, err := json.Marshal(result)
	if err != nil {
		opLogger.Error("failed to serialize prediction result", zap.Error(err))
		return
	}
	err = retry.Do(ctx, uc.logger, uc.policy, "cache.set.result", requestID, func() error {
		return uc.cache.Set(ctx, resultCacheKey(result.Record.ID), string(serialized), uc.opts.ResultTTL)
	})
	if err != nil {
		opLogger.Warn("failed to cache prediction result", zap.Error(err))
	}
}

func (uc *PredictionUseCase) cacheGet(ctx context.Context, requestID, key string) (string, error) {
	var value string
	err := retry.Do(ctx, uc.logger, uc.policy, "cache.get.result", requestID, func() error {
		v, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// ValidateCatalog checks that a classifier reporting n classes matches the
// configured catalog.
func (uc *PredictionUseCase) ValidateCatalog(n int) error {
	if n != len(uc.opts.Catalog) {
		return fmt.Errorf("%w: classifier reports %d classes, catalog has %d", decision.ErrInvalidInput, n, len(uc.opts.Catalog))
	}
	return nil
}
