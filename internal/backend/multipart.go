package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// File is one part of a multipart upload.
type File struct {
	Field string
	Name  string
	Body  io.Reader
}

// doMultipart streams fields and files as multipart/form-data through a pipe
// so large uploads are never buffered whole.
func (c *Client) doMultipart(ctx context.Context, target string, fields map[string]string, files []File, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.postMultipart(ctx, target, fields, files)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upload response: %w", err)
	}
	return nil
}

func (c *Client) postMultipart(ctx context.Context, target string, fields map[string]string, files []File) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, fields, files))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, target, pr, mw.FormDataContentType())
	if err != nil {
		pr.Close()
		return nil, err
	}
	resp, err := c.send(req)
	// Unblocks the writer goroutine if the request ended before the body did.
	pr.Close()
	return resp, err
}

func writeParts(mw *multipart.Writer, fields map[string]string, files []File) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}
	return mw.Close()
}
