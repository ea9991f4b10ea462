package files_test

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/upvault/modules/files"
)

// fakeStore is a configurable Store stub for handler tests.
type fakeStore struct {
	saveFn       func(ctx context.Context, in files.SaveInput) (*files.FileInfo, error)
	getFn        func(ctx context.Context, id string) (*files.FileInfo, error)
	listFn       func(ctx context.Context, p files.ListParams) (*files.Page, error)
	downloadFn   func(ctx context.Context, id string) (*files.Download, error)
	updateTagsFn func(ctx context.Context, id string, tags map[string]string) (*files.FileInfo, error)
	deleteFn     func(ctx context.Context, id string) error
}

func (f *fakeStore) Save(ctx context.Context, in files.SaveInput) (*files.FileInfo, error) {
	return f.saveFn(ctx, in)
}

func (f *fakeStore) Get(ctx context.Context, id string) (*files.FileInfo, error) {
	return f.getFn(ctx, id)
}

func (f *fakeStore) List(ctx context.Context, p files.ListParams) (*files.Page, error) {
	return f.listFn(ctx, p)
}

func (f *fakeStore) Download(ctx context.Context, id string) (*files.Download, error) {
	return f.downloadFn(ctx, id)
}

func (f *fakeStore) UpdateTags(ctx context.Context, id string, tags map[string]string) (*files.FileInfo, error) {
	return f.updateTagsFn(ctx, id, tags)
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func testInfo(id string) *files.FileInfo {
	return &files.FileInfo{
		ID:          id,
		Filename:    "report.txt",
		ContentType: "text/plain; charset=utf-8",
		Size:        5,
		Version:     1,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, store files.Store) *httptest.Server {
	t.Helper()
	h := files.NewHandler(store, nil, 1<<20)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

// multipartBody builds a multipart request body with a file part and an
// optional tags part.
func multipartBody(t *testing.T, filename, content, tags string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)

	if tags != "" {
		require.NoError(t, w.WriteField("tags", tags))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestUploadEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("uploads file with tags", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			saveFn: func(ctx context.Context, in files.SaveInput) (*files.FileInfo, error) {
				assert.Equal(t, "report.txt", in.Filename)
				assert.Equal(t, []byte("hello"), in.Content)
				assert.Equal(t, map[string]string{"env": "test"}, in.Tags)
				return testInfo("file-1"), nil
			},
		}
		srv := newTestServer(t, store)

		body, contentType := multipartBody(t, "report.txt", "hello", `{"env":"test"}`)
		resp, err := http.Post(srv.URL+"/", contentType, body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		data := env["data"].(map[string]any)
		assert.Equal(t, "file-1", data["id"])
	})

	t.Run("missing file part", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeStore{})

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("tags", "{}"))
		require.NoError(t, w.Close())

		resp, err := http.Post(srv.URL+"/", w.FormDataContentType(), &buf)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("malformed tags", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeStore{})

		body, contentType := multipartBody(t, "a.txt", "x", "not json")
		resp, err := http.Post(srv.URL+"/", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("oversized upload", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeStore{})

		body, contentType := multipartBody(t, "big.bin", strings.Repeat("x", 2<<20), "")
		resp, err := http.Post(srv.URL+"/", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeStore{})

		body, contentType := multipartBody(t, "empty.txt", "", "")
		resp, err := http.Post(srv.URL+"/", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("backend unavailable", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			saveFn: func(context.Context, files.SaveInput) (*files.FileInfo, error) {
				return nil, fmt.Errorf("throttled: %w", files.ErrStoreUnavailable)
			},
		}
		srv := newTestServer(t, store)

		body, contentType := multipartBody(t, "a.txt", "x", "")
		resp, err := http.Post(srv.URL+"/", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestListEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("returns page with cursor meta", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			listFn: func(ctx context.Context, p files.ListParams) (*files.Page, error) {
				assert.Equal(t, int32(2), p.Limit)
				assert.Equal(t, "abc", p.Cursor)
				return &files.Page{
					Files:      []files.FileInfo{*testInfo("file-1"), *testInfo("file-2")},
					NextCursor: "def",
				}, nil
			},
		}
		srv := newTestServer(t, store)

		resp, err := http.Get(srv.URL + "/?limit=2&cursor=abc")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		meta := env["meta"].(map[string]any)
		assert.Equal(t, float64(2), meta["count"])
		assert.Equal(t, "def", meta["next_cursor"])
		assert.Len(t, env["data"].([]any), 2)
	})

	t.Run("last page omits cursor", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			listFn: func(context.Context, files.ListParams) (*files.Page, error) {
				return &files.Page{Files: []files.FileInfo{*testInfo("file-1")}}, nil
			},
		}
		srv := newTestServer(t, store)

		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		env := decodeEnvelope(t, resp)
		meta := env["meta"].(map[string]any)
		assert.NotContains(t, meta, "next_cursor")
	})

	t.Run("rejects malformed limit", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeStore{})

		resp, err := http.Get(srv.URL + "/?limit=ten")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("rejects invalid cursor from store", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			listFn: func(context.Context, files.ListParams) (*files.Page, error) {
				return nil, fmt.Errorf("%w: junk", files.ErrInvalidCursor)
			},
		}
		srv := newTestServer(t, store)

		resp, err := http.Get(srv.URL + "/?cursor=junk")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestGetEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			getFn: func(ctx context.Context, id string) (*files.FileInfo, error) {
				assert.Equal(t, "file-1", id)
				return testInfo("file-1"), nil
			},
		}
		srv := newTestServer(t, store)

		resp, err := http.Get(srv.URL + "/file-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		data := env["data"].(map[string]any)
		assert.Equal(t, "report.txt", data["filename"])
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			getFn: func(context.Context, string) (*files.FileInfo, error) {
				return nil, files.ErrNotFound
			},
		}
		srv := newTestServer(t, store)

		resp, err := http.Get(srv.URL + "/nope")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		errDetail := env["error"].(map[string]any)
		assert.Equal(t, "not_found", errDetail["code"])
	})
}

func TestDownloadEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("inline content from document store", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			downloadFn: func(context.Context, string) (*files.Download, error) {
				return &files.Download{
					Info:    testInfo("file-1"),
					Content: []byte("hello"),
				}, nil
			},
		}
		srv := newTestServer(t, store)

		resp, err := http.Get(srv.URL + "/file-1/download")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="report.txt"`, resp.Header.Get("Content-Disposition"))

		var body bytes.Buffer
		_, err = body.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", body.String())
	})

	t.Run("redirect to presigned URL from blob store", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			downloadFn: func(context.Context, string) (*files.Download, error) {
				return &files.Download{
					Info: testInfo("file-1"),
					URL:  "https://uploads.s3.amazonaws.com/file-1?X-Amz-Signature=sig",
				}, nil
			},
		}
		srv := newTestServer(t, store)

		client := &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		resp, err := client.Get(srv.URL + "/file-1/download")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Location"), "X-Amz-Signature")
	})
}

func TestUpdateTagsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("replaces tags", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			updateTagsFn: func(ctx context.Context, id string, tags map[string]string) (*files.FileInfo, error) {
				assert.Equal(t, "file-1", id)
				assert.Equal(t, map[string]string{"team": "data"}, tags)
				info := testInfo(id)
				info.Version = 2
				info.Tags = tags
				return info, nil
			},
		}
		srv := newTestServer(t, store)

		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/file-1/tags",
			strings.NewReader(`{"tags":{"team":"data"}}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		data := env["data"].(map[string]any)
		assert.Equal(t, float64(2), data["version"])
	})

	t.Run("invalid body", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeStore{})

		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/file-1/tags", strings.NewReader("{"))
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("tag validation failure", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			updateTagsFn: func(context.Context, string, map[string]string) (*files.FileInfo, error) {
				return nil, fmt.Errorf("%w: empty tag key", files.ErrInvalidTags)
			},
		}
		srv := newTestServer(t, store)

		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/file-1/tags",
			strings.NewReader(`{"tags":{"":"x"}}`))
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestDeleteEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("deletes file", func(t *testing.T) {
		t.Parallel()
		var deleted string
		store := &fakeStore{
			deleteFn: func(ctx context.Context, id string) error {
				deleted = id
				return nil
			},
		}
		srv := newTestServer(t, store)

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/file-1", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "file-1", deleted)
		_ = resp.Body.Close()
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{
			deleteFn: func(context.Context, string) error {
				return fmt.Errorf("update: %w", files.ErrNotFound)
			},
		}
		srv := newTestServer(t, store)

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/nope", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	})
}
