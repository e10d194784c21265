package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shellsync/shellsync/internal/cachestore"
)

// Fetch 对源站发起一次 GET，并把完整响应固化为缓存快照。
// bypass 为 true 时附带 no-cache 头，要求中间缓存回源取最新内容。
// 网络层失败返回 error；HTTP 错误状态不算失败，由调用方通过
// Response.OK 判定是否可以入缓存。
func Fetch(ctx context.Context, client *http.Client, url string, bypass bool) (*cachestore.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if bypass {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	header := http.Header{}
	CopyHeaders(header, resp.Header)

	return &cachestore.Response{
		Key:       url,
		Status:    resp.StatusCode,
		Header:    header,
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}, nil
}
