package chatkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/matheus3301/chatkit/models"
)

// progressReader reports bytes consumed from the wrapped reader so
// uploads can surface transfer progress.
type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	report func(loaded, total int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.loaded += int64(n)
		if p.report != nil {
			p.report(p.loaded, p.total)
		}
	}
	return n, err
}

// uploadAttachment posts the attachment as multipart form data and
// returns the server-assigned media metadata. OnProgress fires with
// (0, total) before the transfer starts and then per read chunk.
func (c *apiClient) uploadAttachment(ctx context.Context, att *models.Attachment, onProgress func(loaded, total int64)) (*models.UploadResult, error) {
	data := att.Data
	name := att.FileName
	if data == nil {
		fileData, err := os.ReadFile(att.FilePath)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		data = fileData
		if name == "" {
			name = filepath.Base(att.FilePath)
		}
	}
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	private := "0"
	if att.Private {
		private = "1"
	}
	if err := form.WriteField("private", private); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}

	total := int64(body.Len())
	if onProgress != nil {
		onProgress(0, total)
	}
	reader := &progressReader{r: &body, total: total, report: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/attachment/upload", reader)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading attachment: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result models.UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &result, nil
}
