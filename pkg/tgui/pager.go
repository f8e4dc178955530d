package tgui

import "fmt"

// Page is one window of a slice. Index is 0-based.
type Page[T any] struct {
	Items   []T
	Index   int
	Pages   int
	From    int
	To      int
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate clamps page into range and returns its window.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := max(1, (total+size-1)/size)
	page = min(max(page, 0), pages-1)
	from := min(page*size, total)
	to := min(from+size, total)
	return Page[T]{
		Items:   items[from:to],
		Index:   page,
		Pages:   pages,
		From:    from,
		To:      to,
		Total:   total,
		HasPrev: page > 0,
		HasNext: to < total,
	}
}

// Label renders "Seite 1/3 • 1–15 von 40".
func (p Page[T]) Label() string {
	if p.Total == 0 {
		return "Seite 1/1"
	}
	return fmt.Sprintf("Seite %d/%d • %d–%d von %d", p.Index+1, p.Pages, p.From+1, p.To, p.Total)
}
