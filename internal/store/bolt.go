package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jhahn/jwtworkbench/internal/vault"
)

var (
	bucketProjects     = []byte("projects")
	bucketProjectNames = []byte("projects_by_name")
	bucketKeys         = []byte("keys")
	bucketKeyNames     = []byte("keys_by_project_name") // "projectID/name" -> keyID
	bucketTokens       = []byte("tokens")
)

// BoltStore is the bbolt-backed MetadataStore: the local, embedded,
// transactional equivalent of a relational metadata store, matching the
// spec's "vault.sqlite3-equivalent" file.
type BoltStore struct {
	db *bbolt.DB
}

// Open creates or opens a bbolt-backed metadata store at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketProjects, bucketProjectNames, bucketKeys, bucketKeyNames, bucketTokens} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata store buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func keyNameIndex(projectID, name string) []byte {
	return []byte(projectID + "/" + name)
}

// tokenNameKey is the (project, name) collision key used by Restore's merge
// mode; tokens have no secondary name-index bucket, so this is computed
// on the fly from a full scan rather than looked up.
func tokenNameKey(projectID, name string) string {
	return projectID + "/" + name
}

func (s *BoltStore) CreateProject(_ context.Context, p *vault.Project) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketProjectNames)
		if names.Get([]byte(p.Name)) != nil {
			return fmt.Errorf("%w: project name %q", ErrAlreadyExists, p.Name)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketProjects).Put([]byte(p.ID), data); err != nil {
			return err
		}
		return names.Put([]byte(p.Name), []byte(p.ID))
	})
}

func (s *BoltStore) GetProject(_ context.Context, id string) (*vault.Project, error) {
	var p vault.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) GetProjectByName(_ context.Context, name string) (*vault.Project, error) {
	var p vault.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketProjectNames).Get([]byte(name))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketProjects).Get(id)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListProjects(_ context.Context) ([]*vault.Project, error) {
	var out []*vault.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, data []byte) error {
			var p vault.Project
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateProject(_ context.Context, p *vault.Project) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProjects)
		if bucket.Get([]byte(p.ID)) == nil {
			return ErrNotFound
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(p.ID), data)
	})
}

func (s *BoltStore) DeleteProject(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		projects := tx.Bucket(bucketProjects)
		data := projects.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var p vault.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}

		keys := tx.Bucket(bucketKeys)
		keyNames := tx.Bucket(bucketKeyNames)
		var doomedKeys [][]byte
		if err := keys.ForEach(func(k, v []byte) error {
			var key vault.Key
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			if key.ProjectID == id {
				doomedKeys = append(doomedKeys, append([]byte{}, k...))
				if err := keyNames.Delete(keyNameIndex(key.ProjectID, key.Name)); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range doomedKeys {
			if err := keys.Delete(k); err != nil {
				return err
			}
		}

		tokens := tx.Bucket(bucketTokens)
		var doomedTokens [][]byte
		if err := tokens.ForEach(func(k, v []byte) error {
			var tok vault.Token
			if err := json.Unmarshal(v, &tok); err != nil {
				return err
			}
			if tok.ProjectID == id {
				doomedTokens = append(doomedTokens, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range doomedTokens {
			if err := tokens.Delete(k); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketProjectNames).Delete([]byte(p.Name)); err != nil {
			return err
		}
		return projects.Delete([]byte(id))
	})
}

func (s *BoltStore) CreateKey(_ context.Context, k *vault.Key) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketProjects).Get([]byte(k.ProjectID)) == nil {
			return fmt.Errorf("%w: project %s", ErrNotFound, k.ProjectID)
		}
		names := tx.Bucket(bucketKeyNames)
		idx := keyNameIndex(k.ProjectID, k.Name)
		if names.Get(idx) != nil {
			return fmt.Errorf("%w: key name %q in project %s", ErrAlreadyExists, k.Name, k.ProjectID)
		}
		data, err := json.Marshal(k)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketKeys).Put([]byte(k.ID), data); err != nil {
			return err
		}
		return names.Put(idx, []byte(k.ID))
	})
}

func (s *BoltStore) GetKey(_ context.Context, id string) (*vault.Key, error) {
	var k vault.Key
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketKeys).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &k)
	})
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *BoltStore) ListKeysByProject(_ context.Context, projectID string) ([]*vault.Key, error) {
	var out []*vault.Key
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKeys).ForEach(func(_, data []byte) error {
			var k vault.Key
			if err := json.Unmarshal(data, &k); err != nil {
				return err
			}
			if k.ProjectID == projectID {
				out = append(out, &k)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) FindKeyByName(_ context.Context, projectID, name string) (*vault.Key, error) {
	var k vault.Key
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketKeyNames).Get(keyNameIndex(projectID, name))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketKeys).Get(id)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &k)
	})
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *BoltStore) DeleteKey(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(bucketKeys)
		data := keys.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var k vault.Key
		if err := json.Unmarshal(data, &k); err != nil {
			return err
		}
		if err := tx.Bucket(bucketKeyNames).Delete(keyNameIndex(k.ProjectID, k.Name)); err != nil {
			return err
		}
		return keys.Delete([]byte(id))
	})
}

func (s *BoltStore) CreateToken(_ context.Context, tk *vault.Token) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketProjects).Get([]byte(tk.ProjectID)) == nil {
			return fmt.Errorf("%w: project %s", ErrNotFound, tk.ProjectID)
		}
		data, err := json.Marshal(tk)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTokens).Put([]byte(tk.ID), data)
	})
}

func (s *BoltStore) GetToken(_ context.Context, id string) (*vault.Token, error) {
	var tk vault.Token
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTokens).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &tk)
	})
	if err != nil {
		return nil, err
	}
	return &tk, nil
}

func (s *BoltStore) ListTokensByProject(_ context.Context, projectID string) ([]*vault.Token, error) {
	var out []*vault.Token
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(_, data []byte) error {
			var tk vault.Token
			if err := json.Unmarshal(data, &tk); err != nil {
				return err
			}
			if tk.ProjectID == projectID {
				out = append(out, &tk)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteToken(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		tokens := tx.Bucket(bucketTokens)
		if tokens.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return tokens.Delete([]byte(id))
	})
}

func (s *BoltStore) AllStorageRefs(_ context.Context) (map[string]struct{}, error) {
	refs := make(map[string]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketKeys).ForEach(func(_, data []byte) error {
			var k vault.Key
			if err := json.Unmarshal(data, &k); err != nil {
				return err
			}
			if k.StorageRef != "" {
				refs[k.StorageRef] = struct{}{}
			}
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketTokens).ForEach(func(_, data []byte) error {
			var tk vault.Token
			if err := json.Unmarshal(data, &tk); err != nil {
				return err
			}
			if tk.StorageRef != "" {
				refs[tk.StorageRef] = struct{}{}
			}
			return nil
		})
	})
	return refs, err
}

func (s *BoltStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Projects: projects}
	for _, p := range projects {
		keys, err := s.ListKeysByProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		snap.Keys = append(snap.Keys, keys...)
		tokens, err := s.ListTokensByProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		snap.Tokens = append(snap.Tokens, tokens...)
	}
	return snap, nil
}

func (s *BoltStore) Restore(_ context.Context, snap *Snapshot, mode RestoreMode) (*RestoreReport, error) {
	report := &RestoreReport{}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if mode == RestoreReplace {
			for _, b := range [][]byte{bucketProjects, bucketProjectNames, bucketKeys, bucketKeyNames, bucketTokens} {
				if err := tx.DeleteBucket(b); err != nil && err != bbolt.ErrBucketNotFound {
					return err
				}
				if _, err := tx.CreateBucket(b); err != nil {
					return err
				}
			}
		}

		projects := tx.Bucket(bucketProjects)
		projectNames := tx.Bucket(bucketProjectNames)
		keys := tx.Bucket(bucketKeys)
		keyNames := tx.Bucket(bucketKeyNames)
		tokens := tx.Bucket(bucketTokens)

		for _, p := range snap.Projects {
			if mode == RestoreMerge && projectNames.Get([]byte(p.Name)) != nil {
				report.Skipped++
				continue
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := projects.Put([]byte(p.ID), data); err != nil {
				return err
			}
			if err := projectNames.Put([]byte(p.Name), []byte(p.ID)); err != nil {
				return err
			}
			report.ProjectsImported++
		}

		for _, k := range snap.Keys {
			idx := keyNameIndex(k.ProjectID, k.Name)
			if mode == RestoreMerge && keyNames.Get(idx) != nil {
				report.Skipped++
				continue
			}
			data, err := json.Marshal(k)
			if err != nil {
				return err
			}
			if err := keys.Put([]byte(k.ID), data); err != nil {
				return err
			}
			if err := keyNames.Put(idx, []byte(k.ID)); err != nil {
				return err
			}
			report.KeysImported++
		}

		existingTokenNames := map[string]bool{}
		if mode == RestoreMerge {
			if err := tokens.ForEach(func(_, data []byte) error {
				var existing vault.Token
				if err := json.Unmarshal(data, &existing); err != nil {
					return err
				}
				existingTokenNames[tokenNameKey(existing.ProjectID, existing.Name)] = true
				return nil
			}); err != nil {
				return err
			}
		}

		for _, tk := range snap.Tokens {
			if mode == RestoreMerge && existingTokenNames[tokenNameKey(tk.ProjectID, tk.Name)] {
				report.Skipped++
				continue
			}
			data, err := json.Marshal(tk)
			if err != nil {
				return err
			}
			if err := tokens.Put([]byte(tk.ID), data); err != nil {
				return err
			}
			report.TokensImported++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
