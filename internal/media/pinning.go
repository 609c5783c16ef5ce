package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// PinningUploader 通过 pinning 服务的 multipart 接口上传文件
type PinningUploader struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewPinningUploader(endpoint, token string, client *http.Client) *PinningUploader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &PinningUploader{endpoint: endpoint, token: token, client: client}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (u *PinningUploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("%w: empty content id", ErrUploadFailed)
	}
	return out.IpfsHash, nil
}
