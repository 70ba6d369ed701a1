package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cryptolocker/nftwallet/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
	// Tags 列出 prefix/id 下已保存的 tag（文件实现返回安全化后的名字）
	Tags(prefix, id string) ([]string, error)
}

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
	Delete() error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// JSONFileService 基于 JSON 文件的持久化服务
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{
		baseDir: baseDir,
	}
}

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	key := fmt.Sprintf("%s:%s:%s", prefix, id, tag)
	return &JSONFileStore{
		service: s,
		key:     key,
	}
}

// Tags 扫描目录中 "<prefix>_<id>_*.json"
func (s *JSONFileService) Tags(prefix, id string) ([]string, error) {
	head := sanitize(fmt.Sprintf("%s:%s:", prefix, id))
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tags []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, head) || !strings.HasSuffix(name, ".json") {
			continue
		}
		tags = append(tags, strings.TrimSuffix(strings.TrimPrefix(name, head), ".json"))
	}
	sort.Strings(tags)
	return tags, nil
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(key string) string {
	return keySanitizer.ReplaceAllString(key, "_")
}

func (s *JSONFileStore) filePath() string {
	// key 形如 "saga:<account>:<tag>"，这里做文件名安全化
	return filepath.Join(s.service.baseDir, sanitize(s.key)+".json")
}

// Save 保存数据（临时文件 + rename，写入是原子的）
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: key=%s", s.key)
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: key=%s", s.key)
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

func (s *JSONFileStore) Delete() error {
	err := os.Remove(s.filePath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryService 内存实现（测试、未配置持久化目录时使用）
type MemoryService struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryService() *MemoryService {
	return &MemoryService{data: make(map[string][]byte)}
}

func (s *MemoryService) NewStore(prefix, id, tag string) Store {
	return &memoryStore{service: s, key: fmt.Sprintf("%s:%s:%s", prefix, id, tag)}
}

func (s *MemoryService) Tags(prefix, id string) ([]string, error) {
	head := fmt.Sprintf("%s:%s:", prefix, id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tags []string
	for k := range s.data {
		if strings.HasPrefix(k, head) {
			tags = append(tags, strings.TrimPrefix(k, head))
		}
	}
	sort.Strings(tags)
	return tags, nil
}

type memoryStore struct {
	service *MemoryService
	key     string
}

func (s *memoryStore) Save(data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.service.mu.Lock()
	s.service.data[s.key] = b
	s.service.mu.Unlock()
	return nil
}

func (s *memoryStore) Load(data interface{}) error {
	s.service.mu.RLock()
	b, ok := s.service.data[s.key]
	s.service.mu.RUnlock()
	if !ok {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

func (s *memoryStore) Delete() error {
	s.service.mu.Lock()
	delete(s.service.data, s.key)
	s.service.mu.Unlock()
	return nil
}
