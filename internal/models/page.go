package models

// Paging defaults for list endpoints.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page selects a window of a listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps the requested page into the allowed range.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Limit returns the SQL limit for the page.
func (p Page) Limit() int {
	if p.Size < 1 {
		return DefaultPageSize
	}
	return p.Size
}

// Offset returns the SQL offset for the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit()
}
