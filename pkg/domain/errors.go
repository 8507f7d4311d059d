package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound は編集対象の親生成が存在しない場合のセンチネルです。
var ErrNotFound = errors.New("generation not found")

// ValidationError は入力検証の失敗です。リトライせず即時に呼び出し元へ返します。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "入力検証エラー: " + e.Reason
}

// RateLimitedError はプロバイダのレート制限です。この層ではリトライせず、
// キューイングや後退の判断は呼び出し元に委ねます。
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("レート制限に達しました: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ProviderError は生成プロバイダ呼び出しの失敗です。
// Transient が真の場合のみインボーカのバックオフ対象になります。
type ProviderError struct {
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Transient {
		return fmt.Sprintf("プロバイダ一時エラー: %v", e.Err)
	}
	return fmt.Sprintf("プロバイダエラー: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError は生成自体は成功したが保存に失敗したことを示します。
// 創作上の失敗と区別して呼び出し元へ伝える必要があります。
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("永続化エラー: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient は err がリトライ可能なプロバイダ障害かどうかを判定します。
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
