package cachestore

import (
	"errors"
	"net/http"
	"time"
)

// 三个固定的缓存区名称，引擎独占读写。
const (
	AreaLive     = "live"
	AreaStaging  = "staging"
	AreaManifest = "manifest"
)

// RecordKey 是 manifest 区中唯一条目的固定键。
const RecordKey = "manifest-record"

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// Response 是写入缓存区的响应快照，Key 为资源的绝对 URL
// （manifest 区存放序列化的清单记录时除外）。
type Response struct {
	Key       string      `json:"key"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"body"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// OK 返回响应是否为可缓存的成功状态（2xx）。
func (r *Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}
