package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"fintrack/internal/core"
)

// Collection is the remote side of one record collection.
type Collection[T core.Record] struct {
	client    *Client
	endpoints Endpoints
}

func NewCollection[T core.Record](client *Client, endpoints Endpoints) *Collection[T] {
	return &Collection[T]{client: client, endpoints: endpoints}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// fileDisposition is the Content-Disposition of a form file part.
func fileDisposition(field, filename string) string {
	return fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename))
}

func unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, core.ErrUnsupportedOperation)
}

// List fetches every record owned by the token's user, in server order.
// The backend answers either a bare array or {"success":true,"data":[...]}.
func (c *Collection[T]) List(ctx context.Context, token string) ([]T, error) {
	if c.endpoints.List == "" {
		return nil, unsupported("list")
	}
	var raw json.RawMessage
	err := c.client.do(ctx, request{
		op:     "list",
		method: http.MethodGet,
		path:   c.endpoints.List,
		token:  token,
	}, &raw)
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, &core.ServerError{Message: fmt.Sprintf("invalid list response: %v", err)}
		}
		raw = wrapped.Data
	}

	records := []T{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &core.ServerError{Message: fmt.Sprintf("invalid list response: %v", err)}
	}
	return records, nil
}

// Upload sends the file as multipart form data with fields "token" and
// "file". The upload is not validated here.
func (c *Collection[T]) Upload(ctx context.Context, token string, upload core.Upload) (core.ImportResult, error) {
	if c.endpoints.Upload == "" {
		return core.ImportResult{}, unsupported("upload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("token", token); err != nil {
		return core.ImportResult{}, fmt.Errorf("write token field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fileDisposition("file", upload.Name))
	header.Set("Content-Type", upload.Type)
	part, err := mw.CreatePart(header)
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("create file part: %w", err)
	}
	if upload.Body != nil {
		if _, err := io.Copy(part, upload.Body); err != nil {
			return core.ImportResult{}, fmt.Errorf("read upload %q: %w", upload.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return core.ImportResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	var result core.ImportResult
	err = c.client.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		path:        c.endpoints.Upload,
		token:       token,
		body:        &body,
		contentType: mw.FormDataContentType(),
	}, &result)
	if err != nil {
		return core.ImportResult{}, err
	}
	return result, nil
}

// Delete removes one record by id.
func (c *Collection[T]) Delete(ctx context.Context, token string, id int64) error {
	if c.endpoints.Delete == "" {
		return unsupported("delete")
	}
	body, err := jsonBody(struct {
		Token string `json:"token"`
		ID    int64  `json:"id"`
	}{token, id})
	if err != nil {
		return err
	}
	return c.client.do(ctx, request{
		op:          "delete",
		method:      http.MethodPost,
		path:        c.endpoints.Delete,
		token:       token,
		body:        body,
		contentType: "application/json",
	}, nil)
}

func (c *Collection[T]) Stats(ctx context.Context, token string) (core.Stats, error) {
	if c.endpoints.Stats == "" {
		return core.Stats{}, unsupported("stats")
	}
	body, err := jsonBody(struct {
		Token string `json:"token"`
	}{token})
	if err != nil {
		return core.Stats{}, err
	}

	var resp struct {
		Stats *core.Stats `json:"stats"`
	}
	err = c.client.do(ctx, request{
		op:          "stats",
		method:      http.MethodPost,
		path:        c.endpoints.Stats,
		token:       token,
		body:        body,
		contentType: "application/json",
	}, &resp)
	if err != nil {
		return core.Stats{}, err
	}
	if resp.Stats == nil {
		return core.Stats{}, &core.ServerError{Message: "stats missing from response"}
	}
	return *resp.Stats, nil
}
