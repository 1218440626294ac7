package audioeditor

import (
	"os"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"

	"podcleaner/internal/logger"
)

// ReadSourceTags reads the container format and common metadata fields of
// the file at path, grounded on the pack's playlist-metadata reader
// (arung-agamani-denpa-radio/internal/playlist), which uses dhowden/tag
// the same way: open the file, ReadFrom it, inspect Format()/Title()/etc.
func ReadSourceTags(path string) (title, artist, album string, format tag.Format, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", "", "", err
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", "", "", err
	}
	return meta.Title(), meta.Artist(), meta.Album(), meta.Format(), nil
}

// CarryOverID3Tags writes title/artist/album onto an MP3 output file,
// used after ffmpeg re-encoding to restore metadata that -map_metadata
// does not always carry through a filtergraph that drops the original
// container's ID3 frames. Grounded on sv4u-musicdl's use of
// bogem/id3v2/v2 for writing tags onto an MP3 file.
func CarryOverID3Tags(outputPath, title, artist, album string) error {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".mp3") {
		return nil
	}

	id3Tag, err := id3v2.Open(outputPath, id3v2.Options{Parse: false})
	if err != nil {
		return err
	}
	defer id3Tag.Close()

	if title != "" {
		id3Tag.SetTitle(title)
	}
	if artist != "" {
		id3Tag.SetArtist(artist)
	}
	if album != "" {
		id3Tag.SetAlbum(album)
	}

	if err := id3Tag.Save(); err != nil {
		logger.Error("id3_tag_save_failed", "path", outputPath, "error", err)
		return err
	}
	return nil
}
