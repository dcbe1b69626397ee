package bot

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Gateway implements Transport against the HTTP bot gateway. The gateway
// owns the actual chat protocol; this client only ships JSON commands to it.
type Gateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGateway creates a gateway transport.
func NewGateway(baseURL, token string) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}
}

func (g *Gateway) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: could not marshal request body: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: could not create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: could not send request: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read response body: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned status %d: %s", ErrTransport, resp.StatusCode, string(body))
	}
	return body, nil
}

func (g *Gateway) SendText(ctx context.Context, to int64, text string, kb Keyboard) error {
	_, err := g.post(ctx, "/send/text", map[string]any{
		"to":       to,
		"text":     text,
		"keyboard": kb,
	})
	return err
}

func (g *Gateway) SendPhoto(ctx context.Context, to int64, photo []byte, caption string, kb Keyboard) error {
	_, err := g.post(ctx, "/send/photo", map[string]any{
		"to":       to,
		"photo":    base64.StdEncoding.EncodeToString(photo),
		"caption":  caption,
		"keyboard": kb,
	})
	return err
}

func (g *Gateway) EditOrDeleteMessage(ctx context.Context, to int64, messageRef string, text string, kb Keyboard) error {
	_, err := g.post(ctx, "/message/edit", map[string]any{
		"to":          to,
		"message_ref": messageRef,
		"text":        text,
		"keyboard":    kb,
	})
	return err
}

func (g *Gateway) AnswerButtonPress(ctx context.Context, pressID string, notice string) error {
	_, err := g.post(ctx, "/press/answer", map[string]any{
		"press_id": pressID,
		"notice":   notice,
	})
	return err
}

func (g *Gateway) DownloadPhoto(ctx context.Context, photoRef string) ([]byte, error) {
	body, err := g.post(ctx, "/photo/download", map[string]any{
		"photo_ref": photoRef,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data string `json:"data"` // base64
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: could not unmarshal response: %v", ErrTransport, err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: could not decode photo data: %v", ErrTransport, err)
	}
	return data, nil
}
