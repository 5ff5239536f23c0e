package httputil

import (
	"errors"
	"io"

	"secure-channel-service/internal/domain"
)

// ErrBodyTooLarge は本文が上限を超えた場合のエラー。
var ErrBodyTooLarge = errors.New("body too large")

const initialBodyBuffer = 512

// ReadBody は最大limitバイトの本文を読み込む。
// contentLengthが既知ならその長さで1度だけ確保し、伸長で手放したバッファはゼロ化する。
// エラー時は読み込み途中のバッファもゼロ化する。
func ReadBody(r io.Reader, contentLength, limit int64) ([]byte, error) {
	if contentLength > limit {
		return nil, ErrBodyTooLarge
	}
	size := int64(initialBodyBuffer)
	if contentLength >= 0 {
		// 終端の検出のために1バイト余分に確保する
		size = contentLength + 1
	}
	if size > limit+1 {
		size = limit + 1
	}

	buf := make([]byte, 0, size)
	for {
		if len(buf) == cap(buf) {
			if int64(len(buf)) > limit {
				domain.Wipe(buf)
				return nil, ErrBodyTooLarge
			}
			next := int64(2*cap(buf)) + initialBodyBuffer
			if next > limit+1 {
				next = limit + 1
			}
			grown := make([]byte, len(buf), next)
			copy(grown, buf)
			domain.Wipe(buf)
			buf = grown
		}

		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if int64(len(buf)) > limit {
			domain.Wipe(buf)
			return nil, ErrBodyTooLarge
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			domain.Wipe(buf)
			return nil, err
		}
	}
}
