// Package assets は参照画像素材の取得・圧縮・キャッシュと、
// Gemini File API へのオフロードを担当します。
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/adgen-kit/pkg/imgutil"
)

const (
	// UseImageCompression は取得した参照画像をJPEGへ再圧縮するかどうかです。
	UseImageCompression = true
	// ImageCompressionQuality は再圧縮時のJPEG品質です。
	ImageCompressionQuality = 75

	cacheKeyImage = "image_bytes:"
)

// Cache は画像データをキャッシュするためのインターフェースです。
// github.com/patrickmn/go-cache の *Cache がそのまま満たします。
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}

// NewDefaultCache は go-cache ベースの既定キャッシュを生成します。
func NewDefaultCache(ttl time.Duration) Cache {
	return gocache.New(ttl, 2*ttl)
}

// Fetcher は HTTP / GCS 上の参照画像を取得するコンポーネントです。
type Fetcher struct {
	reader     remoteio.InputReader
	httpClient httpkit.ClientInterface
	cache      Cache
	expiration time.Duration
}

// NewFetcher は依存関係を注入して Fetcher を初期化します。
// cache は nil を許容します（キャッシュなし動作）。
func NewFetcher(reader remoteio.InputReader, httpClient httpkit.ClientInterface, cache Cache, cacheTTL time.Duration) (*Fetcher, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}

	return &Fetcher{
		reader:     reader,
		httpClient: httpClient,
		cache:      cache,
		expiration: cacheTTL,
	}, nil
}

// FetchImage は参照URLから画像を取得し、バイト列とMIMEタイプを返します。
// gs:// スキームは GCS リーダー、http(s) は SSRF 検証の上で HTTP クライアントを使います。
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.cache != nil {
		if val, ok := f.cache.Get(cacheKeyImage + rawURL); ok {
			if data, ok := val.([]byte); ok {
				return data, http.DetectContentType(data), nil
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "url", rawURL, "type", fmt.Sprintf("%T", val))
		}
	}

	data, err := f.fetchRaw(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}

	finalData := data
	if UseImageCompression {
		if compressed, err := imgutil.CompressToJPEG(data, ImageCompressionQuality); err == nil {
			finalData = compressed
		}
	}

	mimeType := http.DetectContentType(finalData)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("assets: 取得データが画像ではありません (mime=%s)", mimeType)
	}

	if f.cache != nil {
		f.cache.Set(cacheKeyImage+rawURL, finalData, f.expiration)
	}
	return finalData, mimeType, nil
}

func (f *Fetcher) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "gs://") {
		rc, err := f.reader.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	if safe, err := isSafeURL(rawURL); err != nil || !safe {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}
	return f.httpClient.FetchBytes(ctx, rawURL)
}

// isSafeURL は SSRF (Server-Side Request Forgery) 対策として URL を検証します。
// 許可されたスキーム (http, https) かつ、プライベートIPやループバックアドレスを
// ターゲットにしていないことを確認します。
func isSafeURL(rawURL string) (bool, error) {
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false, fmt.Errorf("URLパース失敗: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, fmt.Errorf("不許可スキーム: %s", parsedURL.Scheme)
	}

	host := parsedURL.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return false, fmt.Errorf("ホスト '%s' の名前解決に失敗しました: %w", host, err)
		}
		ips = resolved
	}

	if len(ips) == 0 {
		return false, fmt.Errorf("IPが見つかりません")
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return false, fmt.Errorf("制限されたネットワークへのアクセスを検知: %s", ip.String())
		}
	}

	return true, nil
}
