package domain

import "strings"

const (
	FolderPhotos  = "photos"
	FolderVideos  = "videos"
	FolderPosters = "posters"
)

// File is a named binary payload with a declared media type, as selected by a
// user or read back from staging.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f File) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

func (f File) IsVideo() bool {
	return strings.HasPrefix(f.ContentType, "video/")
}

func (f File) Size() int {
	return len(f.Data)
}

// AcceptsFile reports whether a file's declared type belongs in folder.
func AcceptsFile(folder string, f File) bool {
	switch NormalizeFolder(folder) {
	case FolderPhotos, FolderPosters:
		return f.IsImage()
	case FolderVideos:
		return f.IsVideo()
	default:
		return false
	}
}

func NormalizeFolder(folder string) string {
	return strings.ToLower(strings.TrimSpace(folder))
}

func ValidFolder(folder string) bool {
	switch NormalizeFolder(folder) {
	case FolderPhotos, FolderVideos, FolderPosters:
		return true
	default:
		return false
	}
}

// FolderPrefix maps an upload folder to its key prefix in the media tree.
func FolderPrefix(folder string) string {
	switch NormalizeFolder(folder) {
	case FolderPhotos:
		return "images/photos/"
	case FolderPosters:
		return "images/posters/"
	case FolderVideos:
		return "videos/"
	default:
		return "uploads/"
	}
}
