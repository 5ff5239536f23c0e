package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/domain"
	"secure-channel-service/internal/transport"
)

// ErrLayerMismatch はサーバーとクライアントのレイヤー数が一致しない場合のエラー。
var ErrLayerMismatch = errors.New("layer count mismatch")

// Client はハンドシェイクの状態を管理し、確立したセッションで暗号化通信を行う。
// ハンドシェイクの各手順はミューテックスで直列化される。
type Client struct {
	mu        sync.Mutex
	transport Transport
	codec     *transport.Codec
	layers    int
	state     State
	session   *Session
	token     []byte
}

// New は新しいClientを生成する。
func New(t Transport, pool *crypt.EnginePool, layers int) *Client {
	if layers < 1 {
		layers = domain.DefaultLayerCount
	}
	return &Client{
		transport: t,
		codec:     transport.NewCodec(pool),
		layers:    layers,
		state:     StateDisconnected,
	}
}

// State は現在のハンドシェイク状態を返す。
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready は暗号化通信が可能な状態かを返す。
func (c *Client) Ready() bool {
	return c.State() == KeyExchanged(c.layers)
}

// Session は現在のセッションの複製を返す。呼び出し側は使用後に Wipe すること。
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.clone()
}

// StartSession はサーバー上にセッションを作成する。
func (c *Client) StartSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected {
		return fmt.Errorf("%w: session already started", domain.ErrProtocolSequence)
	}

	id, layers, err := c.transport.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if layers != c.layers {
		// サーバー側にセッションを残さない
		if delErr := c.transport.DeleteSession(ctx, id); delErr != nil {
			slog.WarnContext(ctx, "failed to delete mismatched session",
				"session_id", id.String(),
				"error", delErr,
			)
		}
		return fmt.Errorf("%w: server %d, client %d", ErrLayerMismatch, layers, c.layers)
	}

	c.session = newSession(id, c.layers)
	c.state = StateSessionStarted
	return nil
}

// PerformKeyExchange は指定スロットの鍵交換を行う。
// 順序違反や失敗の場合、状態は変化しない。
func (c *Client) PerformKeyExchange(ctx context.Context, slot int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot < 1 || slot > c.layers {
		return fmt.Errorf("%w: slot %d", domain.ErrInvalidKeyIndex, slot)
	}
	if c.state != KeyExchanged(slot-1) {
		return fmt.Errorf("%w: slot %d in state %s", domain.ErrProtocolSequence, slot, c.state)
	}

	priv, err := crypt.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer crypt.WipePrivateKey(priv)

	blob, err := crypt.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}

	ct, err := c.transport.ExchangeKey(ctx, c.session.ID, slot, blob)
	if err != nil {
		return fmt.Errorf("exchanging key %d: %w", slot, err)
	}

	k, err := crypt.DecryptKeyIV(priv, ct)
	if err != nil {
		return fmt.Errorf("decrypting key %d: %w", slot, err)
	}

	c.session.RSAPublicKeys[slot-1] = blob
	c.session.AESKeys[slot-1] = k
	c.state = KeyExchanged(slot)
	return nil
}

// PerformFirstKeyExchange は1番目の鍵交換を行う。
func (c *Client) PerformFirstKeyExchange(ctx context.Context) error {
	return c.PerformKeyExchange(ctx, 1)
}

// PerformSecondaryKeyExchange は2番目の鍵交換を行う。
func (c *Client) PerformSecondaryKeyExchange(ctx context.Context) error {
	return c.PerformKeyExchange(ctx, 2)
}

// PerformTertiaryKeyExchange は3番目の鍵交換を行う。
func (c *Client) PerformTertiaryKeyExchange(ctx context.Context) error {
	return c.PerformKeyExchange(ctx, 3)
}

// Connect はセッション作成から全スロットの鍵交換、トークン取得までを行う。
func (c *Client) Connect(ctx context.Context) error {
	if err := c.StartSession(ctx); err != nil {
		return err
	}
	for slot := 1; slot <= c.layers; slot++ {
		if err := c.PerformKeyExchange(ctx, slot); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issueTokenLocked(ctx)
}

// TokenRequest はトークン発行要求の暗号化前の形式。
type TokenRequest struct {
	SessionID string `json:"session_id"`
}

// TokenResponse はトークン発行レスポンスの復号後の形式。
type TokenResponse struct {
	Token string `json:"token"`
}

func (c *Client) issueTokenLocked(ctx context.Context) error {
	if c.token != nil {
		return nil
	}
	body, err := c.codec.EncryptRequestBody(TokenRequest{SessionID: c.session.ID.String()}, c.session)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	raw, err := c.transport.IssueToken(ctx, c.session.ID, body)
	domain.Wipe(body)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	var resp TokenResponse
	if err := c.codec.DecryptResponseBody(raw, c.session, &resp); err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	token, err := base64.StdEncoding.DecodeString(resp.Token)
	if err != nil {
		return fmt.Errorf("%w: token: %v", domain.ErrDecryptionFailed, err)
	}
	c.token = token
	return nil
}

// Call はreqを暗号化してpathへ送り、復号したレスポンスをrespへデコードする。
// 同一セッションで並行に呼び出せる。
func (c *Client) Call(ctx context.Context, path string, req, resp any) error {
	c.mu.Lock()
	if c.state != KeyExchanged(c.layers) {
		c.mu.Unlock()
		return domain.ErrSessionNotReady
	}
	if err := c.issueTokenLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	sess := c.session.clone()
	token := append([]byte(nil), c.token...)
	c.mu.Unlock()

	defer sess.Wipe()
	defer domain.Wipe(token)

	body, err := c.codec.EncryptRequestBody(req, sess)
	if err != nil {
		return err
	}
	raw, err := c.transport.Call(ctx, sess.ID, token, path, body)
	domain.Wipe(body)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	return c.codec.DecryptResponseBody(raw, sess, resp)
}

// Disconnect はサーバー上のセッションを削除し、手元の鍵素材を破棄する。
// サーバーへの削除要求が失敗しても手元の状態は Disconnected になる。
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return nil
	}

	var err error
	if delErr := c.transport.DeleteSession(ctx, c.session.ID); delErr != nil && !IsNotFound(delErr) {
		err = fmt.Errorf("deleting session: %w", delErr)
	}

	c.session.Wipe()
	c.session = nil
	domain.Wipe(c.token)
	c.token = nil
	c.state = StateDisconnected
	return err
}
