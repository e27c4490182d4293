package pdf

import "fmt"

// DocumentLoadError reports a document that could not be opened or parsed
type DocumentLoadError struct {
	Name string
	Err  error
}

func (e *DocumentLoadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("failed to load document: %v", e.Err)
	}
	return fmt.Sprintf("failed to load document %q: %v", e.Name, e.Err)
}

func (e *DocumentLoadError) Unwrap() error { return e.Err }

// PageIndexError reports a zero-based page index outside [0, Total)
type PageIndexError struct {
	Page  int
	Total int
}

func (e *PageIndexError) Error() string {
	return fmt.Sprintf("page %d out of range (document has %d pages)", e.Page, e.Total)
}
