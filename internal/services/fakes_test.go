package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/models"
)

// memDB is an in-memory core.DbClient.
type memDB struct {
	mu       sync.Mutex
	clock    time.Time
	users    map[string]*models.User
	projects map[string]*models.Project
	sessions map[string]*models.Session
	files    map[string]*models.File
	messages []models.ChatMessage

	appendErr error
	touched   int
}

func newMemDB() *memDB {
	return &memDB{
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		users:    map[string]*models.User{},
		projects: map[string]*models.Project{},
		sessions: map[string]*models.Session{},
		files:    map[string]*models.File{},
	}
}

// tick keeps timestamps strictly increasing so ordering is deterministic.
func (m *memDB) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memDB) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("duplicate email")
		}
	}
	u.CreatedAt = m.tick()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memDB) GetProjectForUser(_ context.Context, projectID, userID string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memDB) ListProjectsByUser(_ context.Context, userID string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Project{}
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memDB) UpdateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[p.ID]
	if !ok {
		return fmt.Errorf("project %s not found", p.ID)
	}
	existing.Name, existing.Description, existing.UpdatedAt = p.Name, p.Description, m.tick()
	return nil
}

func (m *memDB) DeleteProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, projectID)
	for id, f := range m.files {
		if f.ProjectID == projectID {
			delete(m.files, id)
		}
	}
	for id, s := range m.sessions {
		if s.ProjectID == projectID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memDB) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = m.tick()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memDB) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) ListSessionsByProject(_ context.Context, projectID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.ProjectID == projectID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memDB) RenameSession(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	s.Name = name
	return nil
}

func (m *memDB) TouchSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.UpdatedAt = m.tick()
	}
	m.touched++
	return nil
}

func (m *memDB) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memDB) CreateFile(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.CreatedAt = m.tick()
	f.UpdatedAt = f.CreatedAt
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *memDB) GetFile(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) filesWhere(keep func(*models.File) bool) []models.File {
	out := []models.File{}
	for _, f := range m.files {
		if keep(f) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memDB) ListFilesByProject(_ context.Context, projectID string, status models.FileStatus) ([]models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filesWhere(func(f *models.File) bool {
		return f.ProjectID == projectID && (status == "" || f.Status == status)
	}), nil
}

func (m *memDB) GetSelectedFiles(_ context.Context, projectID string) ([]models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filesWhere(func(f *models.File) bool { return f.ProjectID == projectID && f.Selected }), nil
}

func (m *memDB) GetFilesByIDs(_ context.Context, ids []string) ([]models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.filesWhere(func(f *models.File) bool { return want[f.ID] }), nil
}

func (m *memDB) withFile(id string, fn func(*models.File)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return fmt.Errorf("file %s not found", id)
	}
	fn(f)
	f.UpdatedAt = m.tick()
	return nil
}

func (m *memDB) MarkFileUploaded(_ context.Context, id string, size int64) error {
	return m.withFile(id, func(f *models.File) {
		f.Size = size
		f.Status = models.FileStatusProcessing
	})
}

func (m *memDB) UpdateFileStatus(_ context.Context, id string, status models.FileStatus) error {
	return m.withFile(id, func(f *models.File) { f.Status = status })
}

func (m *memDB) UpdateFileMetadata(_ context.Context, id, name, description string, columns []models.ColumnDescriptor) error {
	return m.withFile(id, func(f *models.File) {
		f.Name, f.Description, f.Columns = name, description, columns
	})
}

func (m *memDB) SetFileSelected(_ context.Context, id string, selected bool) error {
	return m.withFile(id, func(f *models.File) { f.Selected = selected })
}

func (m *memDB) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}

func (m *memDB) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil && msg.Role == models.RoleAssistant {
		return m.appendErr
	}
	msg.CreatedAt = m.tick()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memDB) RecentMessages(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatMessage{}
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if m.messages[i].SessionID == sessionID {
			out = append(out, m.messages[i])
		}
	}
	return out, nil
}

func (m *memDB) ListMessages(_ context.Context, sessionID string) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatMessage{}
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memDB) Close() error { return nil }

func (m *memDB) sessionMessages(sessionID string) []models.ChatMessage {
	out, _ := m.ListMessages(context.Background(), sessionID)
	return out
}

var _ core.DbClient = (*memDB)(nil)

// memObjects is an in-memory core.ObjectClient.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	if o.failPut != nil {
		return "", o.failPut
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[bucket+"/"+key] = b
	return "https://" + bucket + "/" + key, nil
}

func (o *memObjects) DeleteFile(_ context.Context, bucket, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, bucket+"/"+key)
	return nil
}

func (o *memObjects) HeadFile(_ context.Context, bucket, key string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[bucket+"/"+key]
	if !ok {
		return 0, fmt.Errorf("NotFound: %s", key)
	}
	return int64(len(b)), nil
}

func (o *memObjects) GetObjectReader(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("NotFound: %s", key)
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (o *memObjects) PresignPut(_ context.Context, bucket, key, _ string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.s3/%s?op=put&ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

func (o *memObjects) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.s3/%s?op=get&ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

func (o *memObjects) has(bucket, key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[bucket+"/"+key]
	return ok
}

var _ core.ObjectClient = (*memObjects)(nil)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}
