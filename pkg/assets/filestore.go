package assets

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
)

const (
	cacheKeyFileAPIURI  = "fileapi_uri:"
	cacheKeyFileAPIName = "fileapi_name:"
)

// FileStore は大きな参照画像を Gemini File API へオフロードするコンポーネントです。
// 同一URLの再アップロードを避けるため、URI（参照用）と Name（削除用）をキャッシュします。
type FileStore struct {
	aiClient   gemini.GenerativeModel
	fetcher    *Fetcher
	cache      Cache
	expiration time.Duration
}

// NewFileStore は依存関係を注入して FileStore を初期化します。
func NewFileStore(aiClient gemini.GenerativeModel, fetcher *Fetcher, cache Cache, cacheTTL time.Duration) (*FileStore, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	// cache は nil を許容（キャッシュなし動作）

	return &FileStore{
		aiClient:   aiClient,
		fetcher:    fetcher,
		cache:      cache,
		expiration: cacheTTL,
	}, nil
}

// Upload は参照URLの画像を File API にアップロードし、URI を返します。
func (s *FileStore) Upload(ctx context.Context, fileURL string) (string, error) {
	cacheKey := cacheKeyFileAPIURI + fileURL
	if s.cache != nil {
		if val, ok := s.cache.Get(cacheKey); ok {
			if uri, ok := val.(string); ok {
				return uri, nil
			}
		}
	}

	data, _, err := s.fetcher.FetchImage(ctx, fileURL)
	if err != nil {
		return "", err
	}

	mimeType := http.DetectContentType(data)
	displayName := filepath.Base(fileURL)

	uri, fileName, err := s.aiClient.UploadFile(ctx, data, mimeType, displayName)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, uri, s.expiration)
		s.cache.Set(cacheKeyFileAPIName+fileURL, fileName, s.expiration)
	}
	return uri, nil
}

// Delete はキャッシュされたファイル名を使用して File API からファイルを削除します。
func (s *FileStore) Delete(ctx context.Context, fileURL string) error {
	if s.cache != nil {
		if val, ok := s.cache.Get(cacheKeyFileAPIName + fileURL); ok {
			if name, ok := val.(string); ok {
				// 正しいファイル名 (files/xxxx) で削除を実行
				return s.aiClient.DeleteFile(ctx, name)
			}
		}
	}

	// キャッシュミスした場合、URL 形式では Delete API を叩けないためエラーを返す
	return fmt.Errorf("cannot determine file name for deletion, file not found in cache: %s", fileURL)
}
