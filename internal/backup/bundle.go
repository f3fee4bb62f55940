// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jmynes/taskforge/internal/model"
	"github.com/klauspost/compress/zstd"
)

// DocumentEntryName is the fixed archive entry holding the serialized
// document (plain or envelope form).
const DocumentEntryName = "taskforge-backup.json"

// manifestEntryName holds the manifest written at pack time. It exists for
// human inspection only; unpack derives presence from the entries actually
// found, never from this file.
const manifestEntryName = "manifest.json"

const (
	attachmentPrefix = "attachments/"
	avatarPrefix     = "avatars/"
)

// Kind classifies an import artifact by its structural signature.
type Kind int

const (
	// KindPlain is a bare JSON document or envelope.
	KindPlain Kind = iota
	// KindArchive is a ZIP container with a document entry plus files.
	KindArchive
	// KindCompressed is a zstd-compressed plain document.
	KindCompressed
)

var (
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectKind sniffs the artifact's leading bytes. A bare JSON import skips
// unpacking entirely.
func DetectKind(data []byte) Kind {
	if bytes.HasPrefix(data, zipMagic) {
		return KindArchive
	}
	if bytes.HasPrefix(data, zstdMagic) {
		return KindCompressed
	}
	return KindPlain
}

// AttachmentPath returns the archive path for an attachment's binary.
func AttachmentPath(id int) string {
	return attachmentPrefix + strconv.Itoa(id)
}

// AvatarPath returns the archive path for a user's avatar binary.
func AvatarPath(userID int) string {
	return avatarPrefix + strconv.Itoa(userID)
}

// BundleFile is one binary supplied to Pack under its archive path.
type BundleFile struct {
	Path string
	Data []byte
}

// Pack writes the document under DocumentEntryName, each file under its
// relative path, and a manifest derived from the files actually supplied.
func Pack(document []byte, files []BundleFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create(DocumentEntryName)
	if err != nil {
		return nil, fmt.Errorf("failed to create document entry: %w", err)
	}
	if _, err := w.Write(document); err != nil {
		return nil, fmt.Errorf("failed to write document entry: %w", err)
	}

	manifest := make([]model.FileManifestEntry, 0, len(files))
	for _, f := range files {
		w, err := zw.Create(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create entry %s: %w", f.Path, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write entry %s: %w", f.Path, err)
		}
		manifest = append(manifest, manifestEntryFor(f.Path, true))
	}

	mw, err := zw.Create(manifestEntryName)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest entry: %w", err)
	}
	mdata, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if _, err := mw.Write(mdata); err != nil {
		return nil, fmt.Errorf("failed to write manifest entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func manifestEntryFor(path string, present bool) model.FileManifestEntry {
	entry := model.FileManifestEntry{RelativePath: path, Present: present}
	switch {
	case strings.HasPrefix(path, attachmentPrefix):
		entry.EntityType = "attachment"
		entry.EntityID, _ = strconv.Atoi(strings.TrimPrefix(path, attachmentPrefix))
	case strings.HasPrefix(path, avatarPrefix):
		entry.EntityType = "avatar"
		entry.EntityID, _ = strconv.Atoi(strings.TrimPrefix(path, avatarPrefix))
	}
	return entry
}

// Unpack reads an archive back into document bytes plus a lookup of the file
// entries actually present. A referenced file that is absent from the archive
// is not an error here; the restore reconciliation accounts for it.
func Unpack(archive []byte) ([]byte, map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, nil, validationErrorf("malformed archive: %v", err)
	}

	var document []byte
	files := make(map[string][]byte)
	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			return nil, nil, validationErrorf("unreadable archive entry %s: %v", entry.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, nil, validationErrorf("unreadable archive entry %s: %v", entry.Name, err)
		}
		switch entry.Name {
		case DocumentEntryName:
			document = data
		case manifestEntryName:
			// Ignored: presence is determined empirically.
		default:
			files[entry.Name] = data
		}
	}
	if document == nil {
		return nil, nil, validationErrorf("archive has no %s entry", DocumentEntryName)
	}
	return document, files, nil
}

// CompressDocument wraps a plain artifact in a zstd frame.
func CompressDocument(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("compress backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress backup: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressDocument unwraps a zstd frame produced by CompressDocument.
func DecompressDocument(data []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, validationErrorf("malformed compressed artifact: %v", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, validationErrorf("malformed compressed artifact: %v", err)
	}
	return out, nil
}
