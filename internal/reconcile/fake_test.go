package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/connector"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

var errNotFoundInFake = errors.New("not found")

// fakeConnector replays canned batches. Registered as kind "fake"; tests pass
// the instance itself through the source's connection params.
type fakeConnector struct {
	batches  [][]models.RawRecord
	fetchErr error

	mu        sync.Mutex
	lastSince *time.Time
}

func init() {
	connector.Register("fake", func(params map[string]any) (connector.Connector, error) {
		fc, ok := params["connector"].(*fakeConnector)
		if !ok {
			return nil, connector.ErrSourceUnreachable
		}
		return fc, nil
	})
}

func (f *fakeConnector) FetchBatches(ctx context.Context, since *time.Time, fn connector.BatchFunc) error {
	f.mu.Lock()
	f.lastSince = since
	f.mu.Unlock()

	if f.fetchErr != nil {
		return connector.Unreachable(f.fetchErr)
	}
	for _, batch := range f.batches {
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeConnector) TestConnection(ctx context.Context) bool { return f.fetchErr == nil }

func (f *fakeConnector) Schema(ctx context.Context) []string { return nil }

func (f *fakeConnector) Categories(ctx context.Context) []connector.Category { return nil }

// fakeStore is an in-memory Store with the same lookup semantics as the real
// client: Find methods return (nil, nil) on no match, by-field lookups prefer
// active CIs, by-name lookups see only active CIs.
type fakeStore struct {
	mu      sync.Mutex
	sources map[int64]*models.ImportSource
	cis     []*models.ConfigurationItem
	logs    map[int64]*models.ImportLog
	rels    []*models.Relationship
	nextCI  int64
	nextLog int64
}

func newFakeStore(sources ...*models.ImportSource) *fakeStore {
	s := &fakeStore{
		sources: map[int64]*models.ImportSource{},
		logs:    map[int64]*models.ImportLog{},
	}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	return s
}

func (s *fakeStore) GetSource(ctx context.Context, id int64) (*models.ImportSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, errNotFoundInFake
	}
	return src, nil
}

func (s *fakeStore) FindCIByExternalID(ctx context.Context, externalID string, sourceID int64) (*models.ConfigurationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ci := range s.cis {
		if ci.ExternalID == externalID && ci.ImportSourceID != nil && *ci.ImportSourceID == sourceID {
			clone := *ci
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindCIByField(ctx context.Context, field, value string, caseInsensitive bool) (*models.ConfigurationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := func(ci *models.ConfigurationItem) bool {
		stored := models.CIFields[field].Get(ci)
		if caseInsensitive {
			return strings.EqualFold(stored, value)
		}
		return stored == value
	}

	var deleted *models.ConfigurationItem
	for _, ci := range s.cis {
		if !matches(ci) {
			continue
		}
		if ci.DeletedAt == nil {
			clone := *ci
			return &clone, nil
		}
		if deleted == nil {
			clone := *ci
			deleted = &clone
		}
	}
	return deleted, nil
}

func (s *fakeStore) FindCIByName(ctx context.Context, name string) (*models.ConfigurationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ci := range s.cis {
		if ci.Name == name && ci.DeletedAt == nil {
			clone := *ci
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateCI(ctx context.Context, ci *models.ConfigurationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCI++
	ci.ID = s.nextCI
	ci.CreatedAt = time.Now().UTC()
	ci.UpdatedAt = ci.CreatedAt
	clone := *ci
	s.cis = append(s.cis, &clone)
	return nil
}

func (s *fakeStore) UpdateCI(ctx context.Context, ci *models.ConfigurationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, stored := range s.cis {
		if stored.ID == ci.ID {
			ci.UpdatedAt = time.Now().UTC()
			clone := *ci
			s.cis[i] = &clone
			return nil
		}
	}
	return errNotFoundInFake
}

func (s *fakeStore) CreateImportLog(ctx context.Context, l *models.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	l.ID = s.nextLog
	l.StartedAt = time.Now().UTC()
	clone := *l
	s.logs[l.ID] = &clone
	return nil
}

func (s *fakeStore) UpdateImportLog(ctx context.Context, l *models.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *l
	s.logs[l.ID] = &clone
	return nil
}

func (s *fakeStore) SetSourceLastRun(ctx context.Context, id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[id]; ok {
		src.LastRun = &t
	}
	return nil
}

func (s *fakeStore) CreateRelationship(ctx context.Context, r *models.Relationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rels {
		if existing.SourceCIID == r.SourceCIID &&
			existing.TargetCIID == r.TargetCIID &&
			existing.RelationshipType == r.RelationshipType {
			return false, nil
		}
	}
	clone := *r
	clone.ID = int64(len(s.rels) + 1)
	s.rels = append(s.rels, &clone)
	return true, nil
}

func (s *fakeStore) findByName(name string) *models.ConfigurationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ci := range s.cis {
		if ci.Name == name {
			clone := *ci
			return &clone
		}
	}
	return nil
}

func (s *fakeStore) ciCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cis)
}
