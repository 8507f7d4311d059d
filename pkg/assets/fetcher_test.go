package assets

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_FetchImage(t *testing.T) {
	ctx := context.Background()

	t.Run("gs形式のURLはGCSリーダーから取得されること", func(t *testing.T) {
		img := pngBytes()
		fetcher, err := NewFetcher(&mockReader{data: img}, &mockHTTPClient{}, nil, time.Hour)
		require.NoError(t, err)

		data, mime, err := fetcher.FetchImage(ctx, "gs://bucket/product.png")
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		assert.True(t, strings.HasPrefix(mime, "image/"))
	})

	t.Run("画像でないデータはエラーになること", func(t *testing.T) {
		fetcher, err := NewFetcher(&mockReader{data: []byte("not an image")}, &mockHTTPClient{}, nil, time.Hour)
		require.NoError(t, err)

		_, _, err = fetcher.FetchImage(ctx, "gs://bucket/readme.txt")
		assert.Error(t, err)
	})

	t.Run("キャッシュヒット時は再取得しないこと", func(t *testing.T) {
		img := pngBytes()
		cache := &mockCache{data: map[string]any{}}
		cache.Set(cacheKeyImage+"https://example.com/a.png", img, time.Hour)

		// HTTPクライアントは失敗するモックだが、キャッシュがあるので成功する
		fetcher, err := NewFetcher(&mockReader{}, &mockHTTPClient{err: assert.AnError}, cache, time.Hour)
		require.NoError(t, err)

		data, _, err := fetcher.FetchImage(ctx, "https://example.com/a.png")
		require.NoError(t, err)
		assert.Equal(t, img, data)
	})

	t.Run("不許可スキームのURLは拒否されること", func(t *testing.T) {
		fetcher, err := NewFetcher(&mockReader{}, &mockHTTPClient{}, nil, time.Hour)
		require.NoError(t, err)

		_, _, err = fetcher.FetchImage(ctx, "file:///etc/passwd")
		assert.Error(t, err)
	})

	t.Run("依存関係が欠けている場合は生成に失敗すること", func(t *testing.T) {
		_, err := NewFetcher(nil, &mockHTTPClient{}, nil, time.Hour)
		assert.Error(t, err)

		_, err = NewFetcher(&mockReader{}, nil, nil, time.Hour)
		assert.Error(t, err)
	})
}

func TestIsSafeURL(t *testing.T) {
	t.Run("ループバックアドレスへのアクセスを拒否すること", func(t *testing.T) {
		safe, err := isSafeURL("http://127.0.0.1/internal")
		assert.False(t, safe)
		assert.Error(t, err)
	})

	t.Run("プライベートIPへのアクセスを拒否すること", func(t *testing.T) {
		safe, err := isSafeURL("http://192.168.1.10/admin")
		assert.False(t, safe)
		assert.Error(t, err)
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T, cache Cache) (*FileStore, *mockAIClient) {
		t.Helper()
		ai := &mockAIClient{}
		fetcher, err := NewFetcher(&mockReader{data: pngBytes()}, &mockHTTPClient{data: pngBytes()}, nil, time.Hour)
		require.NoError(t, err)
		store, err := NewFileStore(ai, fetcher, cache, time.Hour)
		require.NoError(t, err)
		return store, ai
	}

	t.Run("キャッシュがない場合はアップロードが実行されること", func(t *testing.T) {
		cache := &mockCache{data: map[string]any{}}
		store, ai := newStore(t, cache)

		uri, err := store.Upload(ctx, "gs://bucket/big.png")
		require.NoError(t, err)
		assert.True(t, ai.uploadCalled)
		assert.Equal(t, "https://gemini.api/files/new-file-id", uri)

		cached, ok := cache.Get(cacheKeyFileAPIURI + "gs://bucket/big.png")
		assert.True(t, ok)
		assert.Equal(t, uri, cached)
	})

	t.Run("キャッシュがある場合はアップロードをスキップすること", func(t *testing.T) {
		cache := &mockCache{data: map[string]any{}}
		cache.Set(cacheKeyFileAPIURI+"gs://bucket/big.png", "https://gemini.api/files/cached", time.Hour)
		store, ai := newStore(t, cache)

		uri, err := store.Upload(ctx, "gs://bucket/big.png")
		require.NoError(t, err)
		assert.False(t, ai.uploadCalled)
		assert.Equal(t, "https://gemini.api/files/cached", uri)
	})

	t.Run("削除はキャッシュされたファイル名で実行されること", func(t *testing.T) {
		cache := &mockCache{data: map[string]any{}}
		cache.Set(cacheKeyFileAPIName+"gs://bucket/big.png", "files/specific-id", time.Hour)
		store, ai := newStore(t, cache)

		require.NoError(t, store.Delete(ctx, "gs://bucket/big.png"))
		assert.Equal(t, "files/specific-id", ai.lastFileName)
	})

	t.Run("キャッシュがない場合の削除はエラーになること", func(t *testing.T) {
		store, _ := newStore(t, &mockCache{data: map[string]any{}})
		err := store.Delete(ctx, "gs://bucket/unknown.png")
		assert.ErrorContains(t, err, "cannot determine file name")
	})
}
