package transport

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/domain"
)

type payload struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func readySession(t *testing.T, layers int) *domain.Session {
	t.Helper()
	s := domain.NewSession(uuid.New(), layers, time.Hour)
	for i := range s.AESKeys {
		k, err := domain.NewKeyIV()
		if err != nil {
			t.Fatalf("new key: %v", err)
		}
		s.AESKeys[i] = k
	}
	return s
}

// countingPool は暗号処理が行われたかを数えるためのプールを返す。
func countingPool(constructed *int) *crypt.EnginePool {
	return crypt.NewEnginePool(crypt.WithSymmetricFactory(func() (*crypt.SymmetricEngine, error) {
		*constructed++
		return crypt.NewSymmetricEngine()
	}))
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(crypt.NewEnginePool())
	sess := readySession(t, domain.DefaultLayerCount)

	ct, err := codec.EncryptResponseBody(payload{OK: true}, sess)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(ct) == `{"ok":true}` {
		t.Fatal("want ciphertext, got plaintext")
	}

	var got payload
	if err := codec.DecryptRequestBody(ct, sess, &got); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !got.OK {
		t.Errorf("want ok=true, got %+v", got)
	}
}

func TestCodec_NotReady(t *testing.T) {
	constructed := 0
	codec := NewCodec(countingPool(&constructed))

	sess := domain.NewSession(uuid.New(), 3, time.Hour)
	k, _ := domain.NewKeyIV()
	sess.AESKeys[0] = k

	if _, err := codec.EncryptResponseBody(payload{OK: true}, sess); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Errorf("want ErrSessionNotReady, got %v", err)
	}
	var v payload
	if err := codec.DecryptRequestBody([]byte("0123456789abcdef"), sess, &v); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Errorf("want ErrSessionNotReady, got %v", err)
	}
	if err := codec.DecryptRequestBody(nil, nil, &v); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Errorf("want ErrSessionNotReady for nil session, got %v", err)
	}
	var typedNil *domain.Session
	if _, err := codec.EncryptResponseBody(payload{OK: true}, typedNil); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Errorf("want ErrSessionNotReady for typed nil session, got %v", err)
	}
	if err := codec.DecryptRequestBody([]byte("0123456789abcdef"), typedNil, &v); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Errorf("want ErrSessionNotReady for typed nil session, got %v", err)
	}
	if constructed != 0 {
		t.Errorf("want no cipher engine used, got %d constructed", constructed)
	}
}

func TestCodec_WrongSession(t *testing.T) {
	codec := NewCodec(crypt.NewEnginePool())
	a := readySession(t, 3)
	b := readySession(t, 3)

	ct, err := codec.EncryptResponseBody(payload{OK: true, Message: "secret"}, a)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var got payload
	err = codec.DecryptRequestBody(ct, b, &got)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("want ErrDecryptionFailed, got %v (payload %+v)", err, got)
	}
}

func TestCodec_WipesRawBody(t *testing.T) {
	codec := NewCodec(crypt.NewEnginePool())
	sess := readySession(t, 3)

	ct, err := codec.EncryptResponseBody(payload{OK: true}, sess)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	var got payload
	if err := codec.DecryptRequestBody(ct, sess, &got); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	for _, b := range ct {
		if b != 0 {
			t.Fatal("want request body zeroed after decrypt")
		}
	}
}

func TestCodec_ConcurrentNoCrossTalk(t *testing.T) {
	codec := NewCodec(crypt.NewEnginePool())
	sess := readySession(t, 3)

	const workers = 2
	results := make([][]byte, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ct, err := codec.EncryptResponseBody(payload{OK: true, Message: fmt.Sprintf("worker-%d", i)}, sess)
			if err != nil {
				t.Errorf("encrypt %d: %v", i, err)
				return
			}
			results[i] = ct
		}(i)
	}
	wg.Wait()

	for i, ct := range results {
		var got payload
		if err := codec.DecryptRequestBody(ct, sess, &got); err != nil {
			t.Fatalf("decrypt %d: %v", i, err)
		}
		if want := fmt.Sprintf("worker-%d", i); got.Message != want {
			t.Errorf("want %s, got %s", want, got.Message)
		}
	}
}

// retainedJSON はデコード時に渡された入力を複製せずに保持する。
type retainedJSON struct {
	raw []byte
}

func (r *retainedJSON) UnmarshalJSON(b []byte) error {
	r.raw = b
	return nil
}

func TestCodec_DecodesFromWipedPlaintext(t *testing.T) {
	codec := NewCodec(crypt.NewEnginePool())
	sess := readySession(t, 3)

	ct, err := codec.EncryptRequestBody(payload{OK: true, Message: "secret"}, sess)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	var got retainedJSON
	if err := codec.DecryptRequestBody(ct, sess, &got); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if len(got.raw) == 0 {
		t.Fatal("want decoder to receive the payload")
	}
	for _, b := range got.raw {
		if b != 0 {
			t.Fatal("want the buffer handed to the decoder zeroed after decrypt")
		}
	}
}
