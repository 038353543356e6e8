package zip

import (
	"archive/zip"
	"bytes"
	"path"
	"strings"
)

// Asset is one archive entry.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

var mimeExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ArchiveAssets packs the assets into a zip, deriving a file extension from
// the MIME type when the filename lacks one.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		name := asset.Filename
		if path.Ext(name) == "" {
			if ext, ok := mimeExtensions[asset.MIME]; ok {
				name += ext
			}
		}
		w, err := zw.Create(name)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}

// SafeName reduces a disk path to a filename-safe archive name.
func SafeName(diskPath string) string {
	name := path.Base(strings.TrimRight(diskPath, "/"))
	name = strings.TrimPrefix(name, "disk:")
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	name = replacer.Replace(name)
	if name == "" || name == "." {
		return "folder"
	}
	return name
}
