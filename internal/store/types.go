package store

// Attributes mirrors the Attributes table of spec.md §3.
type Attributes struct {
	Inode    uint64
	Size     uint64
	Mtime    int64
	Ctime    int64
	Mode     uint32
	IsDir    bool
	MimeType string
}

// ChildEntry is one row of list_children.
type ChildEntry struct {
	Inode uint64
	Name  string
	IsDir bool
}

// ChildEntryExtended is one row of list_children_extended.
type ChildEntryExtended struct {
	ChildEntry
	MimeType string
	RemoteID string
}

// InodeRef pairs a local inode number with its remote id.
type InodeRef struct {
	Inode    uint64
	RemoteID string
}

// Range is an inclusive byte range [Start, End].
type Range struct {
	Start int64
	End   int64
}
