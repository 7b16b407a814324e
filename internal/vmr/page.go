// Package vmr models the legacy records system: the folder/file grid its web
// UI exposes, the metadata form attached to each document, and the Page
// capability surface that the crawler, migrator and indexer drive. Keeping
// Page an interface lets those pipelines run against a fake in tests and a
// live browser in production.
package vmr

import "context"

// Entry is one row of the records grid.
type Entry struct {
	Name     string
	IsFolder bool
	// OnClick is the row's javascript handler, kept verbatim so the browser
	// layer can re-trigger it.
	OnClick string
	// Href is the direct download target when the grid exposes one.
	Href string
}

// Metadata is the indexing form attached to a document. Field names follow
// the form labels.
type Metadata struct {
	FileName                string `json:"file_name"`
	Classification          string `json:"classification"`
	DocumentSubType         string `json:"document_sub_type"`
	QuickReference          string `json:"quick_reference"`
	DocumentDate            string `json:"document_date"`
	ExpiryDate              string `json:"expiry_date"`
	OffsiteLocation         string `json:"offsite_location"`
	OnPremisesLocation      string `json:"on_premises_location"`
	Remarks                 string `json:"remarks"`
	Keywords                string `json:"keywords"`
	DocumentType            string `json:"document_type"`
	DocumentSubTypeInternal string `json:"document_subtype_internal"`
	Lifespan                string `json:"lifespan"`
	Category                string `json:"category"`
}

// Page is a live session against the records system. Implementations own
// navigation state; callers own sequencing. All methods honour ctx
// cancellation.
type Page interface {
	// Login authenticates, clearing any session-takeover prompt.
	Login(ctx context.Context) error
	// NavigateRoot returns to the top of the document tree.
	NavigateRoot(ctx context.Context) error
	// OpenFolder descends into the named child folder of the current view.
	OpenFolder(ctx context.Context, name string) error
	// Back ascends one level. Implementations verify the grid is usable
	// afterwards and report an error when it is not.
	Back(ctx context.Context) error
	// ListEntries parses the current grid view.
	ListEntries(ctx context.Context) ([]Entry, error)
	// Download fetches a file entry's bytes.
	Download(ctx context.Context, e Entry) ([]byte, error)
	// FileMetadata reads the indexing form for a file entry.
	FileMetadata(ctx context.Context, e Entry) (Metadata, error)
	// FillMetadata writes the indexing form for a file entry.
	FillMetadata(ctx context.Context, e Entry, m Metadata) error
	// CurrentURL reports the page address, used as job identity.
	CurrentURL(ctx context.Context) (string, error)
	// Reset tears down and rebuilds the session, ending at the tree root.
	Reset(ctx context.Context) error
	Close() error
}
