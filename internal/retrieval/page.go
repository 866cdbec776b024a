package retrieval

import (
	"context"

	"github.com/notes-bin/imghost/internal/model"
)

// Page is one slice of the catalogue, newest first.
type Page struct {
	Images  []*model.Image
	Page    int
	PerPage int
	Total   int
	Pages   int
}

func (p *Page) HasPrev() bool { return p.Page > 1 }
func (p *Page) HasNext() bool { return p.Page < p.Pages }
func (p *Page) Prev() int { return p.Page - 1 }
func (p *Page) Next() int { return p.Page + 1 }

// List clamps like a paginator: per-page falls back to the default and is
// capped, page numbers below 1 become 1 and past the end become the last page.
func (g *Gateway) List(ctx context.Context, page, perPage int) (*Page, error) {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page < 1 {
		page = 1
	}

	images, total, err := g.repo.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, err
	}
	pages := pageCount(total, perPage)
	if page > pages {
		page = pages
		if images, total, err = g.repo.List(ctx, (page-1)*perPage, perPage); err != nil {
			return nil, err
		}
		pages = pageCount(total, perPage)
	}
	return &Page{Images: images, Page: page, PerPage: perPage, Total: total, Pages: pages}, nil
}

// pageCount is never below 1 so an empty catalogue still has a first page.
func pageCount(total, perPage int) int {
	if total == 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
