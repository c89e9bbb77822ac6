package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docschat/pkg/models"
)

// FSSource reads exported wiki pages (HTML files) from a local directory
// tree. It is a drop-in ContentSource for local indexing and development.
// Page ids are the slash-separated paths relative to the root; the top-level
// directory acts as the space key.
type FSSource struct {
	Root string
}

// NewFSSource creates a source rooted at dir.
func NewFSSource(dir string) *FSSource {
	return &FSSource{Root: dir}
}

// AllPages walks the root and returns every HTML file as a page, in path
// order for determinism.
func (f *FSSource) AllPages(ctx context.Context) ([]models.Page, error) {
	return f.walk(ctx, func(models.Page) bool { return true })
}

// UpdatedPagesSince returns pages under the given top-level directory whose
// file mtime is at or after since. An empty spaceKey matches everything.
func (f *FSSource) UpdatedPagesSince(ctx context.Context, spaceKey string, since time.Time) ([]models.Page, error) {
	return f.walk(ctx, func(p models.Page) bool {
		if spaceKey != "" && p.SpaceKey != spaceKey {
			return false
		}
		return !p.LastModified.Before(since)
	})
}

// PageByID loads one page by its relative path id.
func (f *FSSource) PageByID(ctx context.Context, id string) (models.Page, bool, error) {
	path := filepath.Join(f.Root, filepath.FromSlash(id))
	if !isHTML(path) {
		return models.Page{}, false, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Page{}, false, nil
		}
		return models.Page{}, false, err
	}
	page, err := f.load(path, fi.ModTime())
	if err != nil {
		return models.Page{}, false, err
	}
	return page, true, nil
}

func (f *FSSource) walk(ctx context.Context, keep func(models.Page) bool) ([]models.Page, error) {
	var pages []models.Page

	err := godirwalk.Walk(f.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() || !isHTML(path) {
				return nil
			}

			fi, err := os.Stat(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to stat file")
				return nil
			}
			page, err := f.load(path, fi.ModTime())
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}
			if keep(page) {
				pages = append(pages, page)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages, nil
}

func (f *FSSource) load(path string, modified time.Time) (models.Page, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Page{}, err
	}

	id := rel(f.Root, path)
	space := ""
	if i := strings.Index(id, "/"); i > 0 {
		space = id[:i]
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return models.Page{
		ID:           id,
		Title:        title,
		SpaceKey:     space,
		URL:          "file://" + path,
		HTMLContent:  string(b),
		LastModified: modified,
	}, nil
}

func isHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}
