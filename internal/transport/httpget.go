package transport

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vulnalert/internal/logger"
	"vulnalert/internal/template"
	"vulnalert/pkg/models"
)

// urlRenderer expands the restricted directive subset allowed in HTTP
// Get URLs: $c, $e, $n and $$. Values are query-escaped.
func urlRenderer() *template.Renderer {
	return template.NewRestrictedRenderer(map[byte]func(*template.Context) string{
		'$': func(*template.Context) string { return "$" },
		'c': func(c *template.Context) string {
			if c.Alert == nil {
				return ""
			}
			return url.QueryEscape(c.Alert.ConditionDescription())
		},
		'e': func(c *template.Context) string { return url.QueryEscape(c.Event.Description()) },
		'n': func(c *template.Context) string {
			if c.Task == nil {
				return ""
			}
			return url.QueryEscape(c.Task.Name)
		},
	})
}

// HTTPGetHandler performs an HTTP GET against a template-expanded URL.
// The response body is discarded apart from a truncated debug line.
type HTTPGetHandler struct {
	client *http.Client
	url    *template.Renderer
}

// NewHTTPGetHandler creates the HTTP Get handler.
func NewHTTPGetHandler(timeout time.Duration) *HTTPGetHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGetHandler{
		client: &http.Client{Timeout: timeout},
		url:    urlRenderer(),
	}
}

// Kind returns MethodHTTPGet.
func (h *HTTPGetHandler) Kind() models.MethodKind { return models.MethodHTTPGet }

// Dispatch expands the URL and issues the GET.
func (h *HTTPGetHandler) Dispatch(ctx *Context) models.DispatchResult {
	raw := ctx.MethodData("URL")
	if raw == "" {
		logger.Warnf("Alert %s: HTTP Get method without URL", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}

	target := h.url.Expand(raw, &template.Context{
		Event: ctx.Event,
		Alert: ctx.Alert,
		Task:  ctx.Task,
	})

	resp, err := h.client.Get(target)
	if err != nil {
		logger.Errorf("Alert %s: GET %s failed: %v", ctx.Alert.ID, target, err)
		return models.NewResult(models.ErrInternal)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	io.Copy(io.Discard, resp.Body)
	logger.Debugf("Alert %s: GET %s: %s: %s", ctx.Alert.ID, target, resp.Status,
		strings.TrimSpace(string(preview)))

	if resp.StatusCode >= 400 {
		logger.Errorf("Alert %s: GET %s returned %s", ctx.Alert.ID, target, resp.Status)
		return models.NewResult(models.ErrInternal)
	}
	return models.NewResult(models.OK)
}
