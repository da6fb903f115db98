package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPSender posts messages into a chat through the server's REST API. It
// implements MessageSender.
type HTTPSender struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSender(baseURL, token string) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SendImage posts a multipart message carrying an image attachment.
func (s *HTTPSender) SendImage(ctx context.Context, chatID, filename string, image io.Reader) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, image); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return s.post(ctx, chatID, writer.FormDataContentType(), body)
}

// SendText posts a multipart message carrying a text body.
func (s *HTTPSender) SendText(ctx context.Context, chatID, text string) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("message", text); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return s.post(ctx, chatID, writer.FormDataContentType(), body)
}

func (s *HTTPSender) post(ctx context.Context, chatID, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/api/chats/%s/messages", s.baseURL, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message to chat %s: status %d: %s", chatID, resp.StatusCode, snippet)
	}
	return nil
}
