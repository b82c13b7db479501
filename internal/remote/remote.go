// Package remote defines the external collaborators the core consumes: an
// abstract RemoteDriveClient for the cloud object store and an abstract
// Authenticator for credentials. Neither interface is tied to a concrete
// provider - the core only depends on the shapes in this package. See
// spec.md §6.
package remote

import "context"

// FolderMimeType is the mime type that marks a RemoteFile as a directory.
const FolderMimeType = "application/vnd.driveflux.folder"

// WorkspaceMimePrefix marks a native cloud-document type with no
// downloadable bytes. See internal/shortcut.
const WorkspaceMimePrefix = "application/vnd.google-apps."

// RemoteFile is the metadata the remote service returns for an object.
// Field names mirror the shape of a Microsoft Graph DriveItem / Google
// Drive File resource, reduced to what the core needs.
type RemoteFile struct {
	ID           string
	Name         string
	Parents      []string // remote ids of all parents (DAG, may be >1)
	MimeType     string
	Size         uint64
	ModifiedTime int64 // seconds since epoch
	MD5Checksum  string
	Version      string
}

// IsDir reports whether the file is a folder.
func (f *RemoteFile) IsDir() bool {
	return f.MimeType == FolderMimeType
}

// Change is a single entry from the incremental change feed.
type Change struct {
	FileID  string
	Removed bool
	File    *RemoteFile // nil when Removed, or when the file was hard-deleted
	Trashed bool        // true when File != nil && File is in the trash
}

// ErrInsufficientPermissions is returned by TrashFile when the caller does
// not have permission to delete a shared file.
type ErrInsufficientPermissions struct{ Err error }

func (e *ErrInsufficientPermissions) Error() string { return e.Err.Error() }
func (e *ErrInsufficientPermissions) Unwrap() error  { return e.Err }

// ErrTransient wraps a transient (network, 5xx) failure that the caller
// should retry with backoff.
type ErrTransient struct{ Err error }

func (e *ErrTransient) Error() string { return e.Err.Error() }
func (e *ErrTransient) Unwrap() error  { return e.Err }

// Client is the narrow operation set the core needs from the remote
// service, per spec.md §6. A concrete implementation adapts this to a real
// provider's HTTP API; the core never depends on that shape directly.
type Client interface {
	ListAllFiles(ctx context.Context) ([]*RemoteFile, error)
	GetStartPageToken(ctx context.Context) (string, error)
	ListChanges(ctx context.Context, token string) (changes []*Change, newStartToken string, err error)
	GetFileMD5(ctx context.Context, id string) (string, error)
	DownloadChunk(ctx context.Context, id string, offset, size int64) ([]byte, error)
	UploadFile(ctx context.Context, path, name, mimeType, parentID string) (id string, err error)
	UpdateFileContent(ctx context.Context, id, path string) error
	CreateFolder(ctx context.Context, name, parentID string) (id string, err error)
	TrashFile(ctx context.Context, id string) error
	RenameFile(ctx context.Context, id, newName string) error
}

// Authenticator yields a currently valid bearer credential on demand. The
// core treats the returned string as opaque.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}
