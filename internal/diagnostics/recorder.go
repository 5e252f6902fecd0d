// File: internal/diagnostics/recorder.go

// Package diagnostics persists per-session failure evidence: screenshots,
// DOM snapshots, network traces, and step-by-step progress captures. The
// recorder never fails upward; a full disk must not mask the login failure
// being diagnosed.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Recorder writes artifacts under <base>/<session-id>/<kind>/. Files are
// append-only: sequence numbers guarantee no capture overwrites another.
type Recorder struct {
	dir    string
	logger *zap.Logger

	mu        sync.Mutex
	seq       int
	artifacts []session.ArtifactRef
}

var _ session.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder rooted at base/sessionID.
func NewRecorder(base, sessionID string, logger *zap.Logger) *Recorder {
	return &Recorder{
		dir:    filepath.Join(base, sessionID),
		logger: logger.Named("diagnostics").With(zap.String("session_id", sessionID)),
	}
}

// Factory adapts NewRecorder to the orchestrator's factory signature.
func Factory(base string, logger *zap.Logger) session.RecorderFactory {
	return func(sessionID string) session.Recorder {
		return NewRecorder(base, sessionID, logger)
	}
}

// CaptureScreenshot persists a full-viewport PNG.
func (r *Recorder) CaptureScreenshot(ctx context.Context, tag string, page session.Page) session.ArtifactRef {
	data, err := page.Screenshot(ctx)
	if err != nil {
		r.logger.Warn("screenshot capture failed", zap.String("tag", tag), zap.Error(err))
		return session.ArtifactRef{}
	}
	return r.persist(session.ArtifactScreenshot, tag, "png", data)
}

// CaptureHTML persists the serialized document.
func (r *Recorder) CaptureHTML(ctx context.Context, tag string, page session.Page) session.ArtifactRef {
	markup, err := page.HTML(ctx)
	if err != nil {
		r.logger.Warn("html capture failed", zap.String("tag", tag), zap.Error(err))
		return session.ArtifactRef{}
	}
	return r.persist(session.ArtifactHTML, tag, "html", []byte(markup))
}

// CaptureTrace persists the tab's network exchange as a HAR file.
func (r *Recorder) CaptureTrace(ctx context.Context, tag string, page session.Page) session.ArtifactRef {
	data, err := page.TraceHAR(ctx)
	if err != nil {
		r.logger.Warn("trace capture failed", zap.String("tag", tag), zap.Error(err))
		return session.ArtifactRef{}
	}
	return r.persist(session.ArtifactTrace, tag, "har", data)
}

// CaptureStep records a progress frame. Frames accumulate under videos/ in
// sequence order, giving a flipbook of the whole attempt.
func (r *Recorder) CaptureStep(ctx context.Context, tag string, page session.Page) session.ArtifactRef {
	data, err := page.Screenshot(ctx)
	if err != nil {
		r.logger.Warn("step capture failed", zap.String("tag", tag), zap.Error(err))
		return session.ArtifactRef{}
	}
	return r.persist(session.ArtifactVideo, tag, "png", data)
}

// Artifacts lists everything captured so far, in capture order.
func (r *Recorder) Artifacts() []session.ArtifactRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.ArtifactRef(nil), r.artifacts...)
}

// persist writes one artifact and refreshes the manifest.
func (r *Recorder) persist(kind session.ArtifactKind, tag, ext string, data []byte) session.ArtifactRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	name := fmt.Sprintf("%03d-%s.%s", r.seq, sanitizeTag(tag), ext)
	path := filepath.Join(r.dir, string(kind), name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.logger.Warn("cannot create artifact directory", zap.String("path", path), zap.Error(err))
		return session.ArtifactRef{}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn("cannot write artifact", zap.String("path", path), zap.Error(err))
		return session.ArtifactRef{}
	}

	ref := session.ArtifactRef{Kind: kind, Path: path}
	r.artifacts = append(r.artifacts, ref)
	r.writeManifest()
	r.logger.Debug("artifact persisted", zap.String("path", path))
	return ref
}

type manifest struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Artifacts   []session.ArtifactRef `json:"artifacts"`
}

// writeManifest rewrites manifest.json with the full artifact list. Called
// with r.mu held.
func (r *Recorder) writeManifest() {
	m := manifest{GeneratedAt: time.Now().UTC(), Artifacts: r.artifacts}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		r.logger.Warn("cannot serialize manifest", zap.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(r.dir, "manifest.json"), data, 0o644); err != nil {
		r.logger.Warn("cannot write manifest", zap.Error(err))
	}
}

// sanitizeTag keeps artifact names filesystem-safe.
func sanitizeTag(tag string) string {
	out := make([]rune, 0, len(tag))
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "capture"
	}
	return string(out)
}
