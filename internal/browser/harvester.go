// File: internal/browser/harvester.go
package browser

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// requestState tracks the lifecycle of one network request.
type requestState struct {
	Request    *network.Request
	Response   *network.Response
	StartTS    *cdp.TimeSinceEpoch
	EndTS      *cdp.MonotonicTime
	IsComplete bool
}

// Harvester listens to a tab's CDP network events. It drives the
// network-quiet wait used after navigation and submission, and renders the
// recorded exchange as a HAR document for failure diagnostics.
//
// Request bodies are deliberately never captured: the login POST carries
// the password.
type Harvester struct {
	logger *zap.Logger

	tabCtx         context.Context
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	requests         map[network.RequestID]*requestState
	inflightRequests map[network.RequestID]bool
	lock             sync.RWMutex

	isStarted bool
}

func NewHarvester(tabCtx context.Context, logger *zap.Logger) *Harvester {
	return &Harvester{
		tabCtx:           tabCtx,
		logger:           logger.Named("harvester"),
		requests:         make(map[network.RequestID]*requestState),
		inflightRequests: make(map[network.RequestID]bool),
	}
}

// Start enables the network domain and begins collecting events.
func (h *Harvester) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// Derived from the tab context: if the tab dies, the listener dies.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.tabCtx)

	go h.listen()

	if err := chromedp.Run(h.tabCtx, network.Enable()); err != nil {
		h.cancelListener()
		return err
	}

	h.isStarted = true
	h.logger.Debug("harvester listening for network events")
	return nil
}

func (h *Harvester) listen() {
	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			h.handleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			h.handleResponseReceived(e)
		case *network.EventLoadingFinished:
			h.handleLoadingFinished(e)
		case *network.EventLoadingFailed:
			h.handleLoadingFailed(e)
		}
	})
}

// Stop halts event collection.
func (h *Harvester) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
}

// minQuietPeriod is the floor for the network-quiet wait. NewTicker
// requires a positive interval.
const minQuietPeriod = 100 * time.Millisecond

// WaitNetworkIdle polls until there are no in-flight requests for the full
// quiet period.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod < minQuietPeriod {
		quietPeriod = minQuietPeriod
	}
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflight := len(h.inflightRequests)
			h.lock.RUnlock()

			if inflight > 0 {
				lastActivity = time.Now()
				h.logger.Debug("waiting for network idle", zap.Int("inflight", inflight))
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.inflightRequests[e.RequestID] = true

	// On a redirect the previous request under this ID is complete.
	if e.RedirectResponse != nil {
		if prev, ok := h.requests[e.RequestID]; ok && !prev.IsComplete {
			prev.Response = e.RedirectResponse
			prev.IsComplete = true
		}
	}

	h.requests[e.RequestID] = &requestState{
		Request: e.Request,
		StartTS: e.WallTime,
	}
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if state, ok := h.requests[e.RequestID]; ok {
		state.Response = e.Response
	}
}

func (h *Harvester) handleLoadingFinished(e *network.EventLoadingFinished) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.inflightRequests, e.RequestID)
	if state, ok := h.requests[e.RequestID]; ok {
		state.EndTS = e.Timestamp
		state.IsComplete = true
	}
}

func (h *Harvester) handleLoadingFailed(e *network.EventLoadingFailed) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.inflightRequests, e.RequestID)
	if state, ok := h.requests[e.RequestID]; ok {
		state.EndTS = e.Timestamp
		state.IsComplete = true
	}
}

// GenerateHAR renders the collected exchange in HAR 1.2 form.
func (h *Harvester) GenerateHAR() *HAR {
	h.lock.RLock()
	defer h.lock.RUnlock()

	entries := make([]HAREntry, 0, len(h.requests))
	for _, state := range h.requests {
		if !state.IsComplete || state.Request == nil || state.StartTS == nil {
			continue
		}

		startTime := state.StartTS.Time()
		duration := float64(0)
		if state.EndTS != nil {
			duration = state.EndTS.Time().Sub(startTime).Seconds() * 1000
		}

		entries = append(entries, HAREntry{
			StartedDateTime: startTime,
			Time:            duration,
			Request:         convertRequest(state.Request),
			Response:        convertResponse(state.Response),
		})
	}

	// The HAR spec requires entries sorted by start time.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedDateTime.Before(entries[j].StartedDateTime)
	})

	return &HAR{
		Log: HARLog{
			Version: "1.2",
			Creator: HARCreator{Name: "aduanet-cli", Version: "0.1.0"},
			Entries: entries,
		},
	}
}

func convertRequest(req *network.Request) HARRequest {
	headers := convertHeaders(req.Headers)

	bodySize := int64(-1)
	if req.HasPostData {
		bodySize = 0
		for _, entry := range req.PostDataEntries {
			bodySize += int64(len(entry.Bytes))
		}
	}

	return HARRequest{
		Method:      req.Method,
		URL:         redactQuery(req.URL),
		HTTPVersion: "HTTP/1.1",
		Headers:     headers,
		HeadersSize: calculateHeaderSize(headers),
		BodySize:    bodySize,
	}
}

func convertResponse(resp *network.Response) HARResponse {
	if resp == nil {
		return HARResponse{Status: 0, StatusText: "Failed (No Response)", BodySize: -1}
	}

	headers := convertHeaders(resp.Headers)
	return HARResponse{
		Status:      int(resp.Status),
		StatusText:  resp.StatusText,
		HTTPVersion: resp.Protocol,
		Headers:     headers,
		MimeType:    resp.MimeType,
		RedirectURL: getHeader(resp.Headers, "Location"),
		HeadersSize: calculateHeaderSize(headers),
		BodySize:    int64(resp.EncodedDataLength),
	}
}

// redactQuery strips query values from a URL. Legacy portals sometimes echo
// form fields into GET parameters.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	redacted := url.Values{}
	for name := range q {
		redacted.Set(name, "redacted")
	}
	u.RawQuery = redacted.Encode()
	return u.String()
}

func getHeader(headers network.Headers, key string) string {
	for h, v := range headers {
		if strings.EqualFold(h, key) {
			if valStr, ok := v.(string); ok {
				return strings.Split(valStr, "\n")[0]
			}
		}
	}
	return ""
}

func convertHeaders(headers network.Headers) []NVPair {
	nvps := make([]NVPair, 0, len(headers))
	for name, value := range headers {
		if valStr, ok := value.(string); ok {
			if strings.EqualFold(name, "Cookie") || strings.EqualFold(name, "Set-Cookie") {
				nvps = append(nvps, NVPair{Name: name, Value: "redacted"})
				continue
			}
			for _, v := range strings.Split(valStr, "\n") {
				nvps = append(nvps, NVPair{Name: name, Value: v})
			}
		}
	}
	return nvps
}

func calculateHeaderSize(headers []NVPair) int64 {
	size := 0
	for _, h := range headers {
		size += len(h.Name) + 2 + len(h.Value) + 2
	}
	return int64(size)
}
