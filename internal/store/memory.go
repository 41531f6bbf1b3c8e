package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhahn/jwtworkbench/internal/vault"
)

// MemoryStore is an in-process MetadataStore used for --no-persist mode and
// tests. Nothing survives process exit; semantics otherwise mirror
// BoltStore exactly, including its unique-name and referential-integrity
// checks.
type MemoryStore struct {
	mu           sync.RWMutex
	projects     map[string]*vault.Project
	projectNames map[string]string // name -> id
	keys         map[string]*vault.Key
	keyNames     map[string]string // "projectID/name" -> id
	tokens       map[string]*vault.Token
}

// OpenMemory creates a fresh in-memory metadata store.
func OpenMemory() (*MemoryStore, error) {
	return &MemoryStore{
		projects:     make(map[string]*vault.Project),
		projectNames: make(map[string]string),
		keys:         make(map[string]*vault.Key),
		keyNames:     make(map[string]string),
		tokens:       make(map[string]*vault.Token),
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneProject(p *vault.Project) *vault.Project { cp := *p; return &cp }
func cloneKey(k *vault.Key) *vault.Key             { cp := *k; return &cp }
func cloneToken(t *vault.Token) *vault.Token       { cp := *t; return &cp }

func (s *MemoryStore) CreateProject(_ context.Context, p *vault.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projectNames[p.Name]; ok {
		return fmt.Errorf("%w: project name %q", ErrAlreadyExists, p.Name)
	}
	s.projects[p.ID] = cloneProject(p)
	s.projectNames[p.Name] = p.ID
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*vault.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(p), nil
}

func (s *MemoryStore) GetProjectByName(_ context.Context, name string) (*vault.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.projectNames[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(s.projects[id]), nil
}

func (s *MemoryStore) ListProjects(_ context.Context) ([]*vault.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*vault.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, cloneProject(p))
	}
	return out, nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, p *vault.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return ErrNotFound
	}
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	for kid, k := range s.keys {
		if k.ProjectID == id {
			delete(s.keyNames, keyNameIndexStr(k.ProjectID, k.Name))
			delete(s.keys, kid)
		}
	}
	for tid, t := range s.tokens {
		if t.ProjectID == id {
			delete(s.tokens, tid)
		}
	}
	delete(s.projectNames, p.Name)
	delete(s.projects, id)
	return nil
}

func keyNameIndexStr(projectID, name string) string { return projectID + "/" + name }

func (s *MemoryStore) CreateKey(_ context.Context, k *vault.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[k.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, k.ProjectID)
	}
	idx := keyNameIndexStr(k.ProjectID, k.Name)
	if _, ok := s.keyNames[idx]; ok {
		return fmt.Errorf("%w: key name %q in project %s", ErrAlreadyExists, k.Name, k.ProjectID)
	}
	s.keys[k.ID] = cloneKey(k)
	s.keyNames[idx] = k.ID
	return nil
}

func (s *MemoryStore) GetKey(_ context.Context, id string) (*vault.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneKey(k), nil
}

func (s *MemoryStore) ListKeysByProject(_ context.Context, projectID string) ([]*vault.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*vault.Key
	for _, k := range s.keys {
		if k.ProjectID == projectID {
			out = append(out, cloneKey(k))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindKeyByName(_ context.Context, projectID, name string) (*vault.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.keyNames[keyNameIndexStr(projectID, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneKey(s.keys[id]), nil
}

func (s *MemoryStore) DeleteKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.keyNames, keyNameIndexStr(k.ProjectID, k.Name))
	delete(s.keys, id)
	return nil
}

func (s *MemoryStore) CreateToken(_ context.Context, tk *vault.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[tk.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, tk.ProjectID)
	}
	s.tokens[tk.ID] = cloneToken(tk)
	return nil
}

func (s *MemoryStore) GetToken(_ context.Context, id string) (*vault.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tk, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(tk), nil
}

func (s *MemoryStore) ListTokensByProject(_ context.Context, projectID string) ([]*vault.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*vault.Token
	for _, tk := range s.tokens {
		if tk.ProjectID == projectID {
			out = append(out, cloneToken(tk))
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *MemoryStore) AllStorageRefs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make(map[string]struct{})
	for _, k := range s.keys {
		if k.StorageRef != "" {
			refs[k.StorageRef] = struct{}{}
		}
	}
	for _, t := range s.tokens {
		if t.StorageRef != "" {
			refs[t.StorageRef] = struct{}{}
		}
	}
	return refs, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	projects, _ := s.ListProjects(ctx)
	snap := &Snapshot{Projects: projects}
	for _, p := range projects {
		keys, _ := s.ListKeysByProject(ctx, p.ID)
		snap.Keys = append(snap.Keys, keys...)
		tokens, _ := s.ListTokensByProject(ctx, p.ID)
		snap.Tokens = append(snap.Tokens, tokens...)
	}
	return snap, nil
}

func (s *MemoryStore) Restore(_ context.Context, snap *Snapshot, mode RestoreMode) (*RestoreReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := &RestoreReport{}

	if mode == RestoreReplace {
		s.projects = make(map[string]*vault.Project)
		s.projectNames = make(map[string]string)
		s.keys = make(map[string]*vault.Key)
		s.keyNames = make(map[string]string)
		s.tokens = make(map[string]*vault.Token)
	}

	for _, p := range snap.Projects {
		if mode == RestoreMerge {
			if _, ok := s.projectNames[p.Name]; ok {
				report.Skipped++
				continue
			}
		}
		s.projects[p.ID] = cloneProject(p)
		s.projectNames[p.Name] = p.ID
		report.ProjectsImported++
	}

	for _, k := range snap.Keys {
		idx := keyNameIndexStr(k.ProjectID, k.Name)
		if mode == RestoreMerge {
			if _, ok := s.keyNames[idx]; ok {
				report.Skipped++
				continue
			}
		}
		s.keys[k.ID] = cloneKey(k)
		s.keyNames[idx] = k.ID
		report.KeysImported++
	}

	existingTokenNames := map[string]bool{}
	if mode == RestoreMerge {
		for _, existing := range s.tokens {
			existingTokenNames[keyNameIndexStr(existing.ProjectID, existing.Name)] = true
		}
	}

	for _, tk := range snap.Tokens {
		if mode == RestoreMerge {
			if existingTokenNames[keyNameIndexStr(tk.ProjectID, tk.Name)] {
				report.Skipped++
				continue
			}
		}
		s.tokens[tk.ID] = cloneToken(tk)
		report.TokensImported++
	}

	return report, nil
}
