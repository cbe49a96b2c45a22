package editor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// archiveTime is stamped on every entry so the zip is a pure function of the document
var archiveTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// BuildArchive packs doc as index.html in a zip
func BuildArchive(doc Document) (*bytes.Buffer, error) {
	zipBuffer := new(bytes.Buffer)
	zipWriter := zip.NewWriter(zipBuffer)

	header := &zip.FileHeader{
		Name:     "index.html",
		Method:   zip.Deflate,
		Modified: archiveTime,
	}
	header.SetMode(0o644)

	fileWriter, err := zipWriter.CreateHeader(header)
	if err != nil {
		return nil, err
	}
	if _, err := fileWriter.Write([]byte(doc)); err != nil {
		return nil, err
	}
	if err := zipWriter.Close(); err != nil {
		return nil, err
	}

	return zipBuffer, nil
}

func ArchiveName(projectID string) string {
	return fmt.Sprintf("site-%s.zip", projectID)
}
