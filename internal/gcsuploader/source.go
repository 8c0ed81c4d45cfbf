package gcsuploader

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// Source is a statement file read from disk or a bucket.
type Source struct {
	Location    string
	Name        string
	ContentType string
	Data        []byte
}

// ReadSource reads a local path or a gs:// URI. storage is only used for
// gs:// locations and may be nil otherwise.
func ReadSource(ctx context.Context, location string, storage StorageService) (*Source, error) {
	var (
		name string
		data []byte
		err  error
	)
	if IsGCSURI(location) {
		if storage == nil {
			return nil, fmt.Errorf("ReadSource: %s: no storage service configured", location)
		}
		name = ExtractFilenameFromGCSURI(location)
		data, err = storage.FetchFromGCS(ctx, location)
	} else {
		name = filepath.Base(location)
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("ReadSource: %w", err)
	}
	return &Source{
		Location:    location,
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Data:        data,
	}, nil
}
