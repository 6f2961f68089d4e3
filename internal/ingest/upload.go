// Package ingest owns uploaded documents: saving multipart uploads under
// unique names, resolving input references for job creation, and serving
// the stored content back in the form each consumer needs.
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
)

type Store struct {
	dir string
	log *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Save stores an upload under <uuid>_<original> and returns that reference.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	base := filepath.Base(strings.TrimSpace(originalName))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", common.WrapError(common.ErrInvalidInput, "missing filename")
	}
	ref := uuid.New().String() + "_" + base
	dst, err := os.Create(filepath.Join(s.dir, ref))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() {
		if err := dst.Close(); err != nil {
			s.log.Warn("upload file close error", "ref", ref, "error", err)
		}
	}()
	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	s.log.Info("upload stored", "ref", ref)
	return ref, nil
}

// Resolve implements the orchestrator's input check: URLs pass as-is,
// local references must exist in the upload dir.
func (s *Store) Resolve(_ context.Context, ref string) error {
	if constants.IsURL(ref) {
		return nil
	}
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		return common.WrapError(common.ErrInvalidInput, "upload not found: "+ref)
	}
	return nil
}

// path rejects separators and traversal; references are bare filenames.
func (s *Store) path(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return "", common.WrapError(common.ErrInvalidInput, "bad input reference")
	}
	return filepath.Join(s.dir, ref), nil
}

// ReadText returns the raw file content as text.
func (s *Store) ReadText(ref string) (string, error) {
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return string(b), nil
}

// DataURL returns the file as a data: URL for multimodal model parts.
func (s *Store) DataURL(ref string) (string, error) {
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return "data:" + mimeTypeOf(ref) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

// InputContent is the preview payload served to the presentation layer.
type InputContent struct {
	ContentType string `json:"content_type"`
	MimeType    string `json:"mime_type,omitempty"`
	Base64Data  string `json:"base64_data,omitempty"`
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
}

// InputContent classifies the reference and returns the matching preview
// shape: base64 for images and PDFs, the URL for remote refs, raw text
// otherwise.
func (s *Store) InputContent(ref string) (*InputContent, error) {
	if constants.IsURL(ref) {
		return &InputContent{ContentType: constants.ContentTypeURL, URL: ref}, nil
	}
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, common.WrapError(common.ErrNotFound, "upload "+ref)
	}
	switch constants.DetectInputKind(ref) {
	case constants.InputKindImage:
		return &InputContent{
			ContentType: constants.ContentTypeImageBase64,
			MimeType:    mimeTypeOf(ref),
			Base64Data:  base64.StdEncoding.EncodeToString(b),
		}, nil
	case constants.InputKindPDF:
		return &InputContent{
			ContentType: constants.ContentTypePDFBase64,
			MimeType:    "application/pdf",
			Base64Data:  base64.StdEncoding.EncodeToString(b),
		}, nil
	default:
		return &InputContent{ContentType: constants.ContentTypeText, Text: string(b)}, nil
	}
}

func mimeTypeOf(ref string) string {
	if mt := mime.TypeByExtension(filepath.Ext(ref)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
