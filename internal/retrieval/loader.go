package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

// Knowledge base layout: <dir>/policies/*.md, <dir>/faqs/*.md and an
// optional <dir>/metadata.json.
var docDirs = map[string]string{
	"policies": DocTypePolicy,
	"faqs":     DocTypeFAQ,
}

// Document is one loaded knowledge-base file.
type Document struct {
	Text     string
	Metadata Metadata
}

type docMeta struct {
	ID             string   `json:"id" yaml:"id"`
	FilePath       string   `json:"file_path" yaml:"-"`
	DocumentType   string   `json:"document_type" yaml:"document_type"`
	Title          string   `json:"title" yaml:"title"`
	Intents        []string `json:"intents" yaml:"intents"`
	Keywords       []string `json:"keywords" yaml:"keywords"`
	Version        string   `json:"version" yaml:"version"`
	ComplianceTags []string `json:"compliance_tags" yaml:"compliance_tags"`
	UpdatedAt      string   `json:"updated_at" yaml:"updated_at"`
}

type metadataFile struct {
	Documents []docMeta `json:"documents"`
}

// LoadDocuments reads every markdown document of the knowledge base in a
// stable order. Front matter overrides metadata.json, which overrides
// values derived from the path.
func LoadDocuments(dir string) ([]Document, error) {
	meta, err := loadMetadataFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var docs []Document
	subdirs := make([]string, 0, len(docDirs))
	for d := range docDirs {
		subdirs = append(subdirs, d)
	}
	sort.Strings(subdirs)
	for _, sub := range subdirs {
		paths, err := filepath.Glob(filepath.Join(dir, sub, "*.md"))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", sub, err)
		}
		sort.Strings(paths)
		for _, p := range paths {
			doc, err := loadDocument(p, docDirs[sub], meta)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func loadMetadataFile(path string) (map[string]docMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var mf metadataFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	out := make(map[string]docMeta, len(mf.Documents))
	for _, d := range mf.Documents {
		out[filepath.Base(d.FilePath)] = d
	}
	return out, nil
}

func loadDocument(path, docType string, meta map[string]docMeta) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	front, body, err := splitFrontMatter(raw)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Base(path)
	m := Metadata{
		DocumentID:   strings.TrimSuffix(base, filepath.Ext(base)),
		DocumentType: docType,
		Title:        firstHeading(body),
		Source:       path,
	}
	if fm, ok := meta[base]; ok {
		applyDocMeta(&m, fm)
	}
	applyDocMeta(&m, front)
	if m.Title == "" {
		m.Title = m.DocumentID
	}
	return Document{Text: body, Metadata: m}, nil
}

func applyDocMeta(m *Metadata, d docMeta) {
	if d.ID != "" {
		m.DocumentID = d.ID
	}
	if d.DocumentType != "" {
		m.DocumentType = strings.ToLower(d.DocumentType)
	}
	if d.Title != "" {
		m.Title = d.Title
	}
	if len(d.Intents) > 0 {
		m.Intents = nil
		for _, tag := range d.Intents {
			if in, ok := intent.Parse(tag); ok {
				m.Intents = append(m.Intents, in)
			}
		}
	}
	if len(d.Keywords) > 0 {
		m.Keywords = d.Keywords
	}
	if d.Version != "" {
		m.Version = d.Version
	}
	if len(d.ComplianceTags) > 0 {
		m.ComplianceTags = d.ComplianceTags
	}
	if t, ok := parseDate(d.UpdatedAt); ok {
		m.UpdatedAt = t
	}
}

var frontDelim = []byte("---")

// splitFrontMatter separates a leading YAML block delimited by "---" lines.
func splitFrontMatter(raw []byte) (docMeta, string, error) {
	var fm docMeta
	text := bytes.TrimPrefix(raw, []byte("\ufeff"))
	if !bytes.HasPrefix(text, frontDelim) {
		return fm, string(text), nil
	}
	rest := text[len(frontDelim):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm, string(text), nil
	}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return fm, "", fmt.Errorf("parsing front matter: %w", err)
	}
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return fm, string(body), nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
