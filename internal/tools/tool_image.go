package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/imgvec"
)

// maxInlineDims is the largest vector echoed back to the model in full.
// Bigger vectors only get their dimensions and model reported, to keep
// tool results small.
const maxInlineDims = 64

// ImageVectorizer turns image bytes or URLs into embedding vectors.
type ImageVectorizer interface {
	VectorizeURL(ctx context.Context, url string) (*imgvec.Vector, error)
	VectorizeBytes(ctx context.Context, data []byte, mimeType string) (*imgvec.Vector, error)
}

// FileDownloader fetches workspace file uploads by ID.
type FileDownloader interface {
	DownloadFile(ctx context.Context, fileID string) (data []byte, mimeType string, err error)
}

// ImageTool vectorizes an image given exactly one of three sources: a
// remote URL, a workspace file ID from the conversation, or inline base64.
type ImageTool struct {
	vectorizer ImageVectorizer
	files      FileDownloader
}

// NewImageTool creates the vectorize_image tool. A nil vectorizer produces
// a not-configured result at call time; a nil downloader only disables the
// file_id source.
func NewImageTool(vectorizer ImageVectorizer, files FileDownloader) *ImageTool {
	return &ImageTool{vectorizer: vectorizer, files: files}
}

func (t *ImageTool) Name() string { return "vectorize_image" }

func (t *ImageTool) Description() string {
	return "Compute an embedding vector for an image, for similarity lookups. Provide exactly one of: image_url, file_id (from an attached file annotation in the conversation), or data (base64)."
}

func (t *ImageTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"image_url": {
				"type": "string",
				"description": "Public URL of the image"
			},
			"file_id": {
				"type": "string",
				"description": "Workspace file ID of an uploaded image, e.g. F0123ABC"
			},
			"data": {
				"type": "string",
				"description": "Base64-encoded image bytes"
			},
			"mime_type": {
				"type": "string",
				"description": "MIME type for base64 data, e.g. image/png"
			}
		}
	}`)
}

func (t *ImageTool) Kinds() KindSet { return AllKinds }

func (t *ImageTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.vectorizer == nil {
		return notConfiguredResult(call, "image vectorization"), nil
	}

	var args struct {
		ImageURL string `json:"image_url"`
		FileID   string `json:"file_id"`
		Data     string `json:"data"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}

	sources := 0
	for _, s := range []string{args.ImageURL, args.FileID, args.Data} {
		if strings.TrimSpace(s) != "" {
			sources++
		}
	}
	if sources != 1 {
		return errorResultf(call, "provide exactly one of image_url, file_id or data"), nil
	}

	rc.Notify("Analyzing the image…")

	var (
		vec *imgvec.Vector
		err error
	)
	switch {
	case args.ImageURL != "":
		vec, err = t.vectorizer.VectorizeURL(ctx, args.ImageURL)

	case args.FileID != "":
		if t.files == nil {
			return errorResultf(call, "file downloads are not available here; use image_url instead"), nil
		}
		var data []byte
		var mimeType string
		data, mimeType, err = t.files.DownloadFile(ctx, args.FileID)
		if err != nil {
			return errorResult(call, fmt.Errorf("downloading file %s: %w", args.FileID, err)), nil
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return errorResultf(call, "file %s is %s, not an image", args.FileID, mimeType), nil
		}
		vec, err = t.vectorizer.VectorizeBytes(ctx, data, mimeType)

	default:
		var data []byte
		data, err = base64.StdEncoding.DecodeString(args.Data)
		if err != nil {
			return errorResultf(call, "data is not valid base64: %s", err), nil
		}
		mimeType := args.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		vec, err = t.vectorizer.VectorizeBytes(ctx, data, mimeType)
	}
	if err != nil {
		return errorResult(call, fmt.Errorf("vectorizing image: %w", err)), nil
	}

	return textResult(call, formatVector(vec)), nil
}

// formatVector inlines small vectors and reports only shape for large ones.
func formatVector(vec *imgvec.Vector) string {
	dims := vec.Dimensions()
	if dims <= maxInlineDims {
		parts := make([]string, dims)
		for i, v := range vec.Values {
			parts[i] = fmt.Sprintf("%.4f", v)
		}
		return fmt.Sprintf("vector (%d dims, model %s): [%s]", dims, vec.Model, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("vector computed: %d dimensions, model %s (values omitted for size)", dims, vec.Model)
}
