package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/thingdir/internal/document"
)

// DocumentFile is a Thing Description read from disk.
type DocumentFile struct {
	Path string
	// ID is the document's own identifier, or the file name without its
	// extension when the document has none.
	ID  string
	Doc document.Object
}

// LoadError is a file that could not be read or decoded.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// FindJSONFiles returns the .json files under path in lexical order. A
// path naming a file returns that file.
func FindJSONFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".json") {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// LoadDocuments reads every JSON document under path. Files that fail to
// decode are reported and skipped; the rest are returned.
func LoadDocuments(path string) ([]DocumentFile, []error) {
	files, err := FindJSONFiles(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Path: path, Message: "path not found"}}
		}
		return nil, []error{&LoadError{Code: ErrCodeScanError, Path: path, Message: err.Error()}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Path: path, Message: "no .json files found"}}
	}

	var docs []DocumentFile
	var errs []error
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeScanError, Path: f, Message: err.Error()})
			continue
		}
		doc, err := document.ParseObject(data)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeInvalidJSON, Path: f, Message: err.Error()})
			continue
		}
		id, ok := doc.Identifier()
		if !ok {
			id = strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		}
		docs = append(docs, DocumentFile{Path: f, ID: id, Doc: doc})
	}
	return docs, errs
}
