package service

import (
	"context"
	"log/slog"

	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// DocUpdate is the result of an aux document write (or its dry run).
type DocUpdate struct {
	Kind      string            `json:"kind"`
	DryRun    bool              `json:"dry_run,omitempty"`
	Diffs     []models.FileDiff `json:"diffs"`
	Persisted bool              `json:"persisted"`
}

// DocService is whole-document CRUD over the auxiliary per-session
// documents (mood, NPC memory, discoveries, ...). Writes take the
// session lock when the caller names an owner; a dry run reports the
// would-be diff without persisting.
type DocService struct {
	store  repositories.Store
	locks  *LockService
	logger *slog.Logger
}

func NewDocService(store repositories.Store, locks *LockService, logger *slog.Logger) *DocService {
	return &DocService{store: store, locks: locks, logger: logger}
}

// Kinds lists the document kinds backends accept.
func (s *DocService) Kinds() []string {
	return repositories.DocKinds
}

func (s *DocService) Get(ctx context.Context, slug, kind string) (map[string]any, error) {
	doc, err := s.store.LoadDoc(ctx, slug, kind)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// Put replaces the document. With dryRun set, nothing persists and the
// returned diffs describe what would change.
func (s *DocService) Put(ctx context.Context, slug, kind string, doc map[string]any, dryRun bool, lockOwner string) (DocUpdate, error) {
	if lockOwner != "" {
		if err := s.locks.Require(ctx, slug, lockOwner); err != nil {
			return DocUpdate{}, err
		}
	}

	current, err := s.store.LoadDoc(ctx, slug, kind)
	if err != nil {
		return DocUpdate{}, err
	}
	if current == nil {
		current = map[string]any{}
	}
	update := DocUpdate{
		Kind:   kind,
		DryRun: dryRun,
		Diffs:  LeafDiffs(current, doc),
	}
	if dryRun {
		return update, nil
	}

	if err := s.store.SaveDoc(ctx, slug, kind, doc); err != nil {
		return DocUpdate{}, err
	}
	update.Persisted = true
	s.logger.Debug("aux doc saved", "slug", slug, "kind", kind)
	return update, nil
}
