// File: internal/session/fakes_test.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aduanet/aduanet-cli/internal/config"
)

// fakePage is an in-memory Page that records its call sequence.
type fakePage struct {
	mu     sync.Mutex
	calls  []string
	markup string
	url    string
	exists map[string]bool

	// readyAfter is the number of EvaluateBool polls before the
	// readiness predicate holds; -1 means never.
	readyAfter int
	polls      int

	navErr    error
	clickErr  error
	typeErr   error
	setErr    error
	submitErr error
	htmlErr   error

	closed bool
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("nav:" + url)
	return p.navErr
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	p.record("click:" + sel)
	return p.clickErr
}

func (p *fakePage) TypeText(_ context.Context, sel, text string) error {
	p.record(fmt.Sprintf("type:%s=%s", sel, text))
	return p.typeErr
}

func (p *fakePage) SetFieldByName(_ context.Context, _, name, value string) error {
	p.record(fmt.Sprintf("set:%s=%s", name, value))
	return p.setErr
}

func (p *fakePage) SubmitForm(_ context.Context, sel string) error {
	p.record("submit:" + sel)
	return p.submitErr
}

func (p *fakePage) EvaluateBool(_ context.Context, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.readyAfter < 0 {
		return false, nil
	}
	return p.polls > p.readyAfter, nil
}

func (p *fakePage) Exists(_ context.Context, sel string) (bool, error) {
	return p.exists[sel], nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	if p.htmlErr != nil {
		return "", p.htmlErr
	}
	return p.markup, nil
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) TraceHAR(context.Context) ([]byte, error) { return []byte("{}"), nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeBrowser struct {
	main     *fakePage
	popup    *fakePage
	popupErr error
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) { return b.main, nil }

func (b *fakeBrowser) ExpectPopup(ctx context.Context, _ Page, _ time.Duration, trigger func(context.Context) error) (Page, error) {
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	if b.popupErr != nil {
		return nil, b.popupErr
	}
	return b.popup, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	artifacts []ArtifactRef
}

func (r *fakeRecorder) capture(kind ArtifactKind, tag string) ArtifactRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := ArtifactRef{Kind: kind, Path: string(kind) + "/" + tag}
	r.artifacts = append(r.artifacts, ref)
	return ref
}

func (r *fakeRecorder) CaptureScreenshot(_ context.Context, tag string, _ Page) ArtifactRef {
	return r.capture(ArtifactScreenshot, tag)
}

func (r *fakeRecorder) CaptureHTML(_ context.Context, tag string, _ Page) ArtifactRef {
	return r.capture(ArtifactHTML, tag)
}

func (r *fakeRecorder) CaptureTrace(_ context.Context, tag string, _ Page) ArtifactRef {
	return r.capture(ArtifactTrace, tag)
}

func (r *fakeRecorder) CaptureStep(_ context.Context, tag string, _ Page) ArtifactRef {
	return r.capture(ArtifactScreenshot, tag)
}

func (r *fakeRecorder) Artifacts() []ArtifactRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ArtifactRef(nil), r.artifacts...)
}

type fakeJournal struct {
	mu          sync.Mutex
	attempts    []string
	transitions []string
	outcomes    []string
}

func (j *fakeJournal) RecordAttempt(_ context.Context, sessionID, company string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, company)
	return nil
}

func (j *fakeJournal) RecordTransition(_ context.Context, _ string, from, to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transitions = append(j.transitions, from.String()+"->"+to.String())
	return nil
}

func (j *fakeJournal) RecordOutcome(_ context.Context, _ string, status Status, reason Reason) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, status.String()+"/"+string(reason))
	return nil
}

type fakeFallback struct {
	token   string
	err     error
	started []string
}

func (f *fakeFallback) Start(_ context.Context, company string) (string, error) {
	f.started = append(f.started, company)
	return f.token, f.err
}

type staticCreds struct {
	creds config.Credentials
	err   error
}

func (s staticCreds) Credentials(string) (config.Credentials, error) { return s.creds, s.err }
