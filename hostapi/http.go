package hostapi

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/errors"
)

// MaxHTTPResponseBytes bounds the body read from an outbound call (16MB).
const MaxHTTPResponseBytes = 16 << 20

// HTTPCall performs an outbound HTTP request on behalf of the guest.
// Requires the http_call operation and the http transport; failures are
// structured and never retried by the host itself.
func (h *Host) HTTPCall(ctx context.Context, method, url string, headers map[string]string, body []byte) (*HTTPResponse, error) {
	if !h.caps.SupportsOperation(capability.OpHTTPCall) {
		return nil, errors.NotSupported(capability.OpHTTPCall)
	}
	if !h.caps.HasTransport(capability.TransportHTTP) {
		return nil, errors.New(errors.PhaseCapability, errors.KindUnsupported).
			Op(capability.OpHTTPCall).
			Detail("transport %q not declared", capability.TransportHTTP).
			Build()
	}
	if method == "" || url == "" {
		return nil, errors.InvalidInput(capability.OpHTTPCall, "method and url are required")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.InvalidInput(capability.OpHTTPCall, err.Error())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Timeout(capability.OpHTTPCall, h.client.Timeout.Milliseconds())
		}
		return nil, errors.TransportFailed(capability.OpHTTPCall, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxHTTPResponseBytes))
	if err != nil {
		return nil, errors.TransportFailed(capability.OpHTTPCall, err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k, vs := range resp.Header {
		if len(vs) > 0 {
			respHeaders[k] = vs[0]
		}
	}

	return &HTTPResponse{
		Status:  resp.StatusCode,
		Body:    respBody,
		Headers: respHeaders,
	}, nil
}

// FetchArtifact downloads a file from the metadata service over plain HTTP.
// Any non-2xx status is a failure naming the status; the raw body bytes are
// returned on success.
func (h *Host) FetchArtifact(ctx context.Context, addr, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := h.HTTPCall(ctx, http.MethodGet, "http://"+addr+path, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status/100 != 2 {
		return nil, errors.TransportStatus("fetch_artifact", resp.Status)
	}
	return resp.Body, nil
}
