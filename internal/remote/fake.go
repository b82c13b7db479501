package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory Client used by tests throughout this module. It is
// not a production remote-drive implementation; it exists to exercise the
// store, dispatcher, range cache and synchronizer against a narrow,
// predictable stand-in for the real external service (spec.md §6).
type Fake struct {
	mu            sync.Mutex
	files         map[string]*RemoteFile
	content       map[string][]byte
	changes       []*Change
	pageToken     int
	noDelete      map[string]bool // ids that simulate insufficient-permissions on trash
	failTransient int             // remaining calls to fail with ErrTransient
}

// NewFake creates an empty Fake with only the root folder.
func NewFake() *Fake {
	return &Fake{
		files: map[string]*RemoteFile{
			"root": {ID: "root", Name: "root", MimeType: FolderMimeType},
		},
		content:  make(map[string][]byte),
		noDelete: make(map[string]bool),
	}
}

// Seed inserts a file directly, bypassing the change feed. Useful for
// bootstrap-scenario tests.
func (f *Fake) Seed(file *RemoteFile, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.ID] = file
	if content != nil {
		f.content[file.ID] = content
	}
}

// PushChange appends a change to the feed that ListChanges will surface on
// its next call, and updates the tracked file state to match.
func (f *Fake) PushChange(c *Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
	if c.Removed {
		delete(f.files, c.FileID)
		return
	}
	if c.File != nil {
		f.files[c.FileID] = c.File
	}
}

// DenyDelete marks id so that TrashFile reports insufficient permissions.
func (f *Fake) DenyDelete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noDelete[id] = true
}

// FailNextCalls makes the next n calls that hit the network (ListChanges)
// fail with ErrTransient, simulating a temporary outage for backoff tests.
func (f *Fake) FailNextCalls(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTransient = n
}

// takeTransientFailure consumes one pending simulated failure, if any.
func (f *Fake) takeTransientFailure() error {
	if f.failTransient <= 0 {
		return nil
	}
	f.failTransient--
	return &ErrTransient{Err: fmt.Errorf("simulated network outage")}
}

func (f *Fake) ListAllFiles(ctx context.Context) ([]*RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*RemoteFile, 0, len(f.files))
	for id, file := range f.files {
		if id == "root" {
			continue
		}
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) GetStartPageToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("%d", len(f.changes)), nil
}

func (f *Fake) ListChanges(ctx context.Context, token string) ([]*Change, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeTransientFailure(); err != nil {
		return nil, "", err
	}
	var start int
	fmt.Sscanf(token, "%d", &start)
	if start < 0 || start > len(f.changes) {
		start = len(f.changes)
	}
	pending := f.changes[start:]
	return pending, fmt.Sprintf("%d", len(f.changes)), nil
}

func (f *Fake) GetFileMD5(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return "", fmt.Errorf("no such file: %s", id)
	}
	return file.MD5Checksum, nil
}

func (f *Fake) DownloadChunk(ctx context.Context, id string, offset, size int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.content[id]
	if !ok {
		return nil, fmt.Errorf("no content for file: %s", id)
	}
	end := offset + size
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}

func (f *Fake) UploadFile(ctx context.Context, path, name, mimeType, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "file-" + uuid.NewString()
	f.files[id] = &RemoteFile{
		ID:       id,
		Name:     name,
		Parents:  []string{parentID},
		MimeType: mimeType,
	}
	return id, nil
}

func (f *Fake) UpdateFileContent(ctx context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return fmt.Errorf("no such file: %s", id)
	}
	return nil
}

func (f *Fake) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "folder-" + uuid.NewString()
	f.files[id] = &RemoteFile{
		ID:       id,
		Name:     name,
		Parents:  []string{parentID},
		MimeType: FolderMimeType,
	}
	return id, nil
}

func (f *Fake) RenameFile(ctx context.Context, id, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return fmt.Errorf("no such file: %s", id)
	}
	file.Name = newName
	return nil
}

func (f *Fake) TrashFile(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noDelete[id] {
		return &ErrInsufficientPermissions{Err: fmt.Errorf("no permission to delete %s", id)}
	}
	delete(f.files, id)
	delete(f.content, id)
	return nil
}

// StaticToken is a trivial Authenticator used by tests.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) { return string(s), nil }
