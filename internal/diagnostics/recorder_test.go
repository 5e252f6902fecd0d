// File: internal/diagnostics/recorder_test.go
package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/session"
)

// stubPage serves canned capture payloads.
type stubPage struct {
	shotErr error
}

func (s *stubPage) Navigate(context.Context, string) error                 { return nil }
func (s *stubPage) Click(context.Context, string) error                    { return nil }
func (s *stubPage) TypeText(context.Context, string, string) error         { return nil }
func (s *stubPage) SetFieldByName(context.Context, string, string, string) error { return nil }
func (s *stubPage) SubmitForm(context.Context, string) error               { return nil }
func (s *stubPage) EvaluateBool(context.Context, string) (bool, error)     { return false, nil }
func (s *stubPage) Exists(context.Context, string) (bool, error)           { return false, nil }
func (s *stubPage) HTML(context.Context) (string, error)                   { return "<html></html>", nil }
func (s *stubPage) URL(context.Context) (string, error)                    { return "https://x.example", nil }
func (s *stubPage) Screenshot(context.Context) ([]byte, error) {
	if s.shotErr != nil {
		return nil, s.shotErr
	}
	return []byte("png-bytes"), nil
}
func (s *stubPage) TraceHAR(context.Context) ([]byte, error) { return []byte(`{"log":{}}`), nil }
func (s *stubPage) Close() error                             { return nil }

func TestRecorderPersistsArtifacts(t *testing.T) {
	base := t.TempDir()
	rec := NewRecorder(base, "sess-1", zap.NewNop())
	page := &stubPage{}
	ctx := context.Background()

	shot := rec.CaptureScreenshot(ctx, "popup-opened", page)
	doc := rec.CaptureHTML(ctx, "failure-credentialrejected", page)
	trace := rec.CaptureTrace(ctx, "failure-credentialrejected", page)
	step := rec.CaptureStep(ctx, "dashboard-ready", page)

	assert.Equal(t, session.ArtifactScreenshot, shot.Kind)
	assert.Equal(t, session.ArtifactHTML, doc.Kind)
	assert.Equal(t, session.ArtifactTrace, trace.Kind)
	assert.Equal(t, session.ArtifactVideo, step.Kind)

	// Sequence numbers keep files append-only and ordered.
	assert.Contains(t, filepath.Base(shot.Path), "001-")
	assert.Contains(t, filepath.Base(step.Path), "004-")

	for _, ref := range []session.ArtifactRef{shot, doc, trace, step} {
		_, err := os.Stat(ref.Path)
		require.NoError(t, err, ref.Path)
	}

	// Manifest reflects the full capture list.
	data, err := os.ReadFile(filepath.Join(base, "sess-1", "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "001-popup-opened.png")
	assert.Contains(t, string(data), "failure-credentialrejected")

	assert.Len(t, rec.Artifacts(), 4)
}

func TestRecorderNeverPropagatesFailure(t *testing.T) {
	rec := NewRecorder(t.TempDir(), "sess-2", zap.NewNop())
	page := &stubPage{shotErr: errors.New("tab crashed")}

	ref := rec.CaptureScreenshot(context.Background(), "boom", page)
	assert.Empty(t, ref.Path)
	assert.Empty(t, rec.Artifacts())
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "login_page", sanitizeTag("login page"))
	assert.Equal(t, "a_b_c", sanitizeTag("a/b:c"))
	assert.Equal(t, "capture", sanitizeTag(""))
}
