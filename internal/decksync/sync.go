// Package decksync imports markdown decks from local directories and git
// repositories into learners' card collections.
package decksync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conorfennell/kotoba/internal/domain"
	"github.com/conorfennell/kotoba/internal/gitsource"
	"github.com/conorfennell/kotoba/internal/knol"
	"github.com/conorfennell/kotoba/internal/metrics"
	"github.com/conorfennell/kotoba/internal/parser"
	"github.com/conorfennell/kotoba/internal/storage"
)

// Report summarises one source's reconciliation.
type Report struct {
	SourceID  int64    `json:"source_id"`
	Path      string   `json:"path"`
	Parsed    int      `json:"parsed"`
	Inserted  int      `json:"inserted"`
	Unchanged int      `json:"unchanged"`
	Orphaned  int      `json:"orphaned"`
	Errors    []string `json:"errors,omitempty"`
}

// Syncer reconciles sources against the database. Runs are serialised.
type Syncer struct {
	db       *storage.DB
	reposDir string
	metrics  *metrics.Metrics

	// fetch brings a git source up to date at localPath.
	fetch func(ctx context.Context, url, localPath string) error

	mu sync.Mutex
}

// New returns a Syncer that checks git sources out under reposDir.
func New(db *storage.DB, reposDir string, m *metrics.Metrics) *Syncer {
	return &Syncer{
		db:       db,
		reposDir: reposDir,
		metrics:  m,
		fetch:    gitsource.Sync,
	}
}

// RunSync iterates over all sources and reconciles them.
func (s *Syncer) RunSync(ctx context.Context) ([]Report, error) {
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	return s.run(ctx, sources), nil
}

// RunLearner reconciles only the learner's sources.
func (s *Syncer) RunLearner(ctx context.Context, learnerID string) ([]Report, error) {
	sources, err := s.db.ListSources(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources for %s: %w", learnerID, err)
	}
	return s.run(ctx, sources), nil
}

// RunSource reconciles a single source. Failures are reported in the
// report's Errors.
func (s *Syncer) RunSource(ctx context.Context, src domain.Source) Report {
	reports := s.run(ctx, []domain.Source{src})
	if len(reports) == 0 {
		return Report{SourceID: src.ID, Path: src.Path, Errors: []string{ctx.Err().Error()}}
	}
	return reports[0]
}

func (s *Syncer) run(ctx context.Context, sources []domain.Source) []Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil
	}

	reports := make([]Report, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		slog.Info("syncing source", "id", src.ID, "type", src.Type, "path", src.Path)

		report, err := s.SyncSource(ctx, src)
		if err != nil {
			slog.Error("failed to sync source", "id", src.ID, "path", src.Path, "error", err)
			report.Errors = append(report.Errors, err.Error())
		}
		reports = append(reports, report)
	}
	slog.Info("sync complete", "sources", len(reports))
	return reports
}

// SyncSource fetches src if it is a git source and reconciles its cards.
func (s *Syncer) SyncSource(ctx context.Context, src domain.Source) (Report, error) {
	dir := src.Path
	switch src.Type {
	case domain.SourceLocal:
	case domain.SourceGit:
		local, err := gitsource.LocalPath(s.reposDir, src.Path)
		if err != nil {
			return Report{SourceID: src.ID, Path: src.Path}, err
		}
		if err := s.fetch(ctx, src.Path, local); err != nil {
			return Report{SourceID: src.ID, Path: src.Path}, err
		}
		dir = local
	default:
		return Report{SourceID: src.ID, Path: src.Path}, fmt.Errorf("unknown source type %q", src.Type)
	}
	return s.reconcile(ctx, src, dir)
}

// reconcile inserts cards found under dir that the source does not have yet
// and removes the source's cards that are no longer present. Orphans are only
// pruned when every file parsed, so an unreadable file never deletes cards.
func (s *Syncer) reconcile(ctx context.Context, src domain.Source, dir string) (Report, error) {
	report := Report{SourceID: src.ID, Path: src.Path}

	existing, err := s.db.CardHashesBySource(ctx, src.ID)
	if err != nil {
		return report, err
	}

	var (
		found    = make(map[string]bool)
		decks    = make(map[string]string)
		newCards []*domain.Card
		failed   bool
	)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			failed = true
			report.Errors = append(report.Errors, fmt.Sprintf("parsing %s: %v", path, parseErr))
			return nil
		}

		for _, pc := range fileCards {
			card := pc.Card
			card.Hash = knol.Hash(card)
			report.Parsed++
			if found[card.Hash] {
				continue
			}
			found[card.Hash] = true
			if _, ok := existing[card.Hash]; ok {
				report.Unchanged++
				continue
			}

			card.DeckID, err = s.deckFor(ctx, src, pc.Deck, decks)
			if err != nil {
				failed = true
				report.Errors = append(report.Errors, fmt.Sprintf("deck %q: %v", pc.Deck, err))
				continue
			}
			newCards = append(newCards, &card)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, os.ErrNotExist) {
			return report, fmt.Errorf("source directory %s does not exist", dir)
		}
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	var orphaned []string
	if !failed {
		for hash, id := range existing {
			if !found[hash] {
				slog.Debug("orphaned card", "source_id", src.ID, "hash", hash)
				orphaned = append(orphaned, id)
			}
		}
	}

	if err := s.db.ImportCards(ctx, src, newCards, orphaned); err != nil {
		return report, err
	}
	report.Inserted = len(newCards)
	report.Orphaned = len(orphaned)

	if err := s.db.UpdateSourceLastScanned(ctx, src.ID); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", src.ID, "error", err)
	}

	s.metrics.AddSyncCards("inserted", report.Inserted)
	s.metrics.AddSyncCards("orphaned", report.Orphaned)
	s.metrics.AddSyncCards("unchanged", report.Unchanged)

	slog.Info("reconciliation complete",
		"path", src.Path,
		"parsed_cards", report.Parsed,
		"inserted", report.Inserted,
		"orphaned_deleted", report.Orphaned,
		"errors", len(report.Errors),
	)
	return report, nil
}

// deckFor resolves a "# Deck:" heading to the learner's deck, falling back to
// the source's own deck when the file has no heading.
func (s *Syncer) deckFor(ctx context.Context, src domain.Source, name string, cache map[string]string) (string, error) {
	if name == "" {
		return src.DeckID, nil
	}
	if id, ok := cache[name]; ok {
		return id, nil
	}
	deck, err := s.db.EnsureDeck(ctx, src.LearnerID, name)
	if err != nil {
		return "", err
	}
	cache[name] = deck.ID
	return deck.ID, nil
}

// TypeOf guesses whether path names a git repository or a local directory.
func TypeOf(path string) domain.SourceType {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "ssh://") {
		return domain.SourceGit
	}
	return domain.SourceLocal
}
