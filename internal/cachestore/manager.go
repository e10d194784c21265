package cachestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewManager 以 basePath 为根目录构建缓存区管理器，整个进程复用一份实例。
func NewManager(basePath string) (*Manager, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &Manager{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// Manager 持有全部缓存区，通过 entryLock 避免同一键并发写入。
type Manager struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// Area 代表一个具名缓存区，首次 Open 时惰性创建目录。
type Area struct {
	manager *Manager
	name    string
	dir     string
}

// Open 返回具名缓存区，目录不存在时创建。
func (m *Manager) Open(name string) (*Area, error) {
	dir, err := m.areaDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache area %s: %w", name, err)
	}
	return &Area{manager: m, name: name, dir: dir}, nil
}

// Drop 整体删除一个缓存区及其全部条目。
func (m *Manager) Drop(name string) error {
	dir, err := m.areaDir(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("drop cache area %s: %w", name, err)
	}
	return nil
}

// Reset 无条件删除全部三个缓存区，用于迁移故障后的兜底清理。
func (m *Manager) Reset() error {
	var firstErr error
	for _, name := range []string{AreaLive, AreaStaging, AreaManifest} {
		if err := m.Drop(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) areaDir(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("area name required")
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return "", fmt.Errorf("invalid area name: %q", name)
	}
	return filepath.Join(m.basePath, trimmed), nil
}

// Name 返回缓存区名称，供日志字段使用。
func (a *Area) Name() string {
	return a.name
}

// Get 返回指定键的缓存条目，不存在时返回 ErrNotFound。
func (a *Area) Get(ctx context.Context, key string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(a.entryPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &resp, nil
}

// Put 原子写入一个条目：先落临时文件再 rename，失败时清理残留。
func (a *Area) Put(ctx context.Context, key string, resp *Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if resp == nil {
		return errors.New("nil response")
	}

	unlock := a.manager.lockEntry(a.name, key)
	defer unlock()

	stored := *resp
	stored.Key = key
	if stored.FetchedAt.IsZero() {
		stored.FetchedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tempFile, err := os.CreateTemp(a.dir, ".entry-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempName)
		return writeErr
	}

	if err := os.Rename(tempName, a.entryPath(key)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// Delete 删除指定键的条目，条目不存在不视为错误。
func (a *Area) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := a.manager.lockEntry(a.name, key)
	defer unlock()

	if err := os.Remove(a.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Keys 返回缓存区里所有条目的原始请求键，顺序不保证。
func (a *Area) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("decode cache entry %s: %w", name, err)
		}
		keys = append(keys, resp.Key)
	}
	return keys, nil
}

func (a *Area) entryPath(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(a.dir, hex.EncodeToString(sum[:])+".json")
}

func (m *Manager) lockEntry(area, key string) func() {
	id := area + "\x00" + key
	m.mu.Lock()
	lock := m.locks[id]
	if lock == nil {
		lock = &entryLock{}
		m.locks[id] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		m.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}
