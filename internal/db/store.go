package db

import (
	"context"

	"site_watcher/internal/models"
)

// SnapshotStore persists the section snapshot of the public page.
// Load returns nil, nil when nothing has been saved yet.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
}

type FileSnapshotStore struct {
	file *FileStore
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{file: NewFileStore(path, 0o644)}
}

func (s *FileSnapshotStore) Load(_ context.Context) (*models.Snapshot, error) {
	var snap *models.Snapshot
	found, err := s.file.LoadJSON(&snap)
	if err != nil || !found {
		return nil, err
	}
	return snap, nil
}

// Save writes the canonical form: identifier lists sorted numerically.
func (s *FileSnapshotStore) Save(_ context.Context, snap *models.Snapshot) error {
	return s.file.SaveJSON(snap.Canonical())
}

type TalkStore struct {
	file *FileStore
}

func NewTalkStore(path string) *TalkStore {
	return &TalkStore{file: NewFileStore(path, 0o644)}
}

func (s *TalkStore) Load(_ context.Context) (*models.TalkSnapshot, error) {
	var snap *models.TalkSnapshot
	found, err := s.file.LoadJSON(&snap)
	if err != nil || !found {
		return nil, err
	}
	if snap != nil && snap.Comments == nil {
		snap.Comments = []string{}
	}
	return snap, nil
}

func (s *TalkStore) Save(_ context.Context, snap *models.TalkSnapshot) error {
	return s.file.SaveJSON(models.NewTalkSnapshot(snap.Comments))
}

// SessionStore keeps the single global login session of the talk collector.
type SessionStore struct {
	file *FileStore
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{file: NewFileStore(path, 0o600)}
}

func (s *SessionStore) Load(_ context.Context) (*models.Session, error) {
	var sess *models.Session
	found, err := s.file.LoadJSON(&sess)
	if err != nil || !found {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) Save(_ context.Context, sess *models.Session) error {
	return s.file.SaveJSON(sess)
}

func (s *SessionStore) Clear(_ context.Context) error {
	return s.file.Remove()
}
