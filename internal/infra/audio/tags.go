package audio

import (
	"os"

	"github.com/dhowden/tag"
)

// Tags holds display metadata read from a file.
type Tags struct {
	Title  string
	Artist string
}

// ReadTags reads ID3/MP4/FLAC/OGG tags. Files without tags yield empty Tags.
func ReadTags(path string) Tags {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}
	}
	return Tags{Title: m.Title(), Artist: m.Artist()}
}
