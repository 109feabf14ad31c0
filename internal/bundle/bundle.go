// Package bundle packages one make's trained artifacts — the regressor and
// its three fitted label encoders — into a single zip archive. The archive is
// the atomic unit uploaded to object storage and loaded by the serving cache:
// loading yields either all four objects or an error, never a partial bundle.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kalambet/appraise/internal/feature"
	"github.com/kalambet/appraise/internal/model"
)

// Fixed archive entry names. These are the wire format: changing them orphans
// every previously uploaded bundle.
const (
	entryModel       = "model"
	entryLabelsModel = "labels_model"
	entryLabelsColor = "labels_color"
	entryLabelsTrans = "labels_transmission"
	entryManifest    = "manifest"
	ArchiveName      = "model.zip"
)

// Manifest records the provenance of a bundle.
type Manifest struct {
	Make      string    `json:"make"`
	RunID     string    `json:"run_id"`
	Family    string    `json:"family"`
	CreatedAt time.Time `json:"created_at"`
}

// Bundle is the atomic per-make unit: regressor plus the three encoders from
// the same training run. Mixing encoders across runs breaks the feature
// contract, so a Bundle is only ever constructed whole.
type Bundle struct {
	Regressor model.Regressor
	Encoders  feature.Encoders
	Manifest  Manifest
}

// Key returns the object-storage key for a make's bundle.
func Key(makeName string) string {
	return makeName + "/" + ArchiveName
}

// Pack serializes the bundle's four objects as loose files in dir, collects
// them into dir/model.zip, then removes the loose files so the archive is the
// only durable artifact. Returns the archive path.
func Pack(dir string, b *Bundle) (string, error) {
	modelData, err := model.Marshal(b.Regressor)
	if err != nil {
		return "", fmt.Errorf("serializing regressor: %w", err)
	}
	manifestData, err := json.Marshal(b.Manifest)
	if err != nil {
		return "", fmt.Errorf("serializing manifest: %w", err)
	}

	entries := []struct {
		name string
		enc  any
		raw  []byte
	}{
		{name: entryModel, raw: modelData},
		{name: entryLabelsModel, enc: b.Encoders.Model},
		{name: entryLabelsColor, enc: b.Encoders.Color},
		{name: entryLabelsTrans, enc: b.Encoders.Transmission},
		{name: entryManifest, raw: manifestData},
	}

	loose := make([]string, 0, len(entries))
	for _, e := range entries {
		data := e.raw
		if data == nil {
			data, err = json.Marshal(e.enc)
			if err != nil {
				return "", fmt.Errorf("serializing %s: %w", e.name, err)
			}
		}
		p := filepath.Join(dir, e.name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", e.name, err)
		}
		loose = append(loose, p)
	}

	archivePath := filepath.Join(dir, ArchiveName)
	if err := writeArchive(archivePath, loose); err != nil {
		return "", err
	}

	for _, p := range loose {
		if err := os.Remove(p); err != nil {
			return "", fmt.Errorf("removing intermediate %s: %w", filepath.Base(p), err)
		}
	}
	return archivePath, nil
}

func writeArchive(path string, files []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	zw := zip.NewWriter(f)

	for _, p := range files {
		data, err := os.ReadFile(p)
		if err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("reading %s: %w", filepath.Base(p), err)
		}
		w, err := zw.Create(filepath.Base(p))
		if err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("adding %s to archive: %w", filepath.Base(p), err)
		}
		if _, err := w.Write(data); err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("compressing %s: %w", filepath.Base(p), err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return f.Close()
}

// Open decodes an archive produced by Pack. All four model entries must be
// present and valid or Open fails entirely.
func Open(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	raw := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", f.Name, err)
		}
		raw[f.Name] = content
	}

	for _, name := range []string{entryModel, entryLabelsModel, entryLabelsColor, entryLabelsTrans} {
		if _, ok := raw[name]; !ok {
			return nil, fmt.Errorf("archive missing entry %s", name)
		}
	}

	reg, err := model.Unmarshal(raw[entryModel])
	if err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}

	b := &Bundle{Regressor: reg}
	for _, e := range []struct {
		name string
		dst  **feature.LabelEncoder
	}{
		{entryLabelsModel, &b.Encoders.Model},
		{entryLabelsColor, &b.Encoders.Color},
		{entryLabelsTrans, &b.Encoders.Transmission},
	} {
		var enc feature.LabelEncoder
		if err := json.Unmarshal(raw[e.name], &enc); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.name, err)
		}
		*e.dst = &enc
	}

	if m, ok := raw[entryManifest]; ok {
		if err := json.Unmarshal(m, &b.Manifest); err != nil {
			return nil, fmt.Errorf("decoding manifest: %w", err)
		}
	}
	return b, nil
}
