package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFolder = errors.New("unknown media folder")
	ErrNotBrowsable  = errors.New("folder has no files of its own")
)

type Folder struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Description string   `json:"description,omitempty"`
	Subfolders  []Folder `json:"subfolders,omitempty"`
}

// Tree is the fixed folder layout of the media bucket. Only leaf folders
// hold files.
type Tree struct {
	Root    string   `json:"root"`
	Folders []Folder `json:"folders"`
}

func DefaultTree() Tree {
	return Tree{
		Root: "cms-assets",
		Folders: []Folder{
			{
				Name: "images",
				Path: "images/",
				Subfolders: []Folder{
					{Name: "posters", Path: "images/posters/", Description: "Event poster images"},
					{Name: "photos", Path: "images/photos/", Description: "General photos"},
				},
			},
			{Name: "videos", Path: "videos/", Description: "Video content"},
		},
	}
}

type Crumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Lookup finds the folder at path. The empty path is the root.
func (t Tree) Lookup(path string) (Folder, bool) {
	path = cleanPrefix(path)
	if path == "" {
		return Folder{Name: t.Root, Subfolders: t.Folders}, true
	}
	return lookup(t.Folders, path)
}

func lookup(folders []Folder, path string) (Folder, bool) {
	for _, f := range folders {
		if f.Path == path {
			return f, true
		}
		if strings.HasPrefix(path, f.Path) {
			if found, ok := lookup(f.Subfolders, path); ok {
				return found, true
			}
		}
	}
	return Folder{}, false
}

// Children returns the subfolders shown when path is open.
func (t Tree) Children(path string) ([]Folder, error) {
	f, ok := t.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, path)
	}
	return f.Subfolders, nil
}

func (t Tree) IsLeaf(path string) bool {
	path = cleanPrefix(path)
	if path == "" {
		return false
	}
	f, ok := t.Lookup(path)
	return ok && len(f.Subfolders) == 0
}

// Leaves lists every folder that holds files, in tree order.
func (t Tree) Leaves() []string {
	var out []string
	var walk func([]Folder)
	walk = func(folders []Folder) {
		for _, f := range folders {
			if len(f.Subfolders) == 0 {
				out = append(out, f.Path)
				continue
			}
			walk(f.Subfolders)
		}
	}
	walk(t.Folders)
	return out
}

// Breadcrumbs returns the trail from the root down to path, root excluded.
func (t Tree) Breadcrumbs(path string) ([]Crumb, error) {
	path = cleanPrefix(path)
	if path == "" {
		return []Crumb{}, nil
	}
	if _, ok := t.Lookup(path); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, path)
	}

	crumbs := []Crumb{}
	folders := t.Folders
	for {
		var next *Folder
		for i := range folders {
			if strings.HasPrefix(path, folders[i].Path) {
				next = &folders[i]
				break
			}
		}
		if next == nil {
			return crumbs, nil
		}
		crumbs = append(crumbs, Crumb{Name: next.Name, Path: next.Path})
		if next.Path == path {
			return crumbs, nil
		}
		folders = next.Subfolders
	}
}

// cleanPrefix trims surrounding slashes and restores the single trailing one
// folder paths carry.
func cleanPrefix(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return path + "/"
}
