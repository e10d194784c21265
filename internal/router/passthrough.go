package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/upstream"
)

// passthrough 把请求原样转发给源站：不查缓存、不写缓存。
// API 调用、动态内容以及清单之外的一切 URL 都走这条路。
func (h *Handler) passthrough(c fiber.Ctx, requestID string, started time.Time) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := h.buildPassthroughRequest(c, ctx)
	if err != nil {
		h.logPassthrough(c, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_unreachable")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logPassthrough(c, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_unreachable")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logPassthrough(c, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, copyErr := io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logPassthrough(c, requestID, resp.StatusCode, started, copyErr)
	if copyErr != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("passthrough stream failed: %v", copyErr))
	}
	return nil
}

func (h *Handler) buildPassthroughRequest(c fiber.Ctx, ctx context.Context) (*http.Request, error) {
	target := h.origin.String() + string(c.Request().URI().RequestURI())

	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(append([]byte(nil), raw...))
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target, body)
	if err != nil {
		return nil, err
	}

	upstream.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())

	return req, nil
}

func (h *Handler) logPassthrough(c fiber.Ctx, requestID string, status int, started time.Time, err error) {
	fields := logging.RequestFields(string(c.Request().URI().Path()), strategyPassthrough, false, false)
	fields["action"] = "route"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("route_failed")
		return
	}
	h.logger.WithFields(fields).Info("route_complete")
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}
