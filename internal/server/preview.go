package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/preview"
	"adte.com/adte/creative-agent/internal/storage"
)

const maxConcurrentUploads = 4

// PreviewCreative validates the manifest and, when it is valid, renders and
// stores one preview per input. Previews come back in input order.
func (s *Server) PreviewCreative(ctx context.Context, req api.PreviewCreativeRequest) (resp *api.PreviewCreativeResponse, err error) {
	defer func() { s.Metrics.RecordOperation("preview_creative", err) }()

	f, err := s.resolveFormat(req.FormatID)
	if err != nil {
		return nil, err
	}
	m, err := s.checkManifest(ctx, f, req.CreativeManifest)
	if err != nil {
		return nil, err
	}
	if s.Store == nil {
		return nil, &Error{Kind: KindCollaborator, Code: CodeUploadFailed, Message: "preview storage is not configured"}
	}

	inputs := req.Inputs
	if len(inputs) == 0 {
		inputs = preview.DefaultInputs()
	}

	previewID := s.newID()
	docs := make([]preview.Document, len(inputs))
	keys := make([]string, len(inputs))
	slugs := make([]string, len(inputs))
	seen := make(map[string]int, len(inputs))
	for i, in := range inputs {
		doc, err := preview.Render(f, m, in)
		if err != nil {
			s.logger().Error("render preview failed", "format_id", f.FormatID.ID, "variant", in.Name, "error", err)
			return nil, fmt.Errorf("render preview: %w", err)
		}
		docs[i] = doc

		slug := doc.Slug()
		seen[slug]++
		if n := seen[slug]; n > 1 {
			slug += "-" + strconv.Itoa(n)
		}
		slugs[i] = slug
		keys[i] = storage.PreviewKey(previewID, slug)
	}
	s.Metrics.RecordPreviews(len(docs))

	urls := make([]string, len(docs))
	failures := make([]*UploadFailure, len(docs))
	var g errgroup.Group
	g.SetLimit(maxConcurrentUploads)
	for i := range docs {
		g.Go(func() error {
			url, err := s.Store.Put(ctx, keys[i], docs[i].HTML)
			s.Metrics.RecordUpload(err)
			if err != nil {
				s.logger().Error("upload preview failed", "preview_id", previewID, "key", keys[i], "error", err)
				failures[i] = uploadFailure(docs[i].Input.Name, keys[i], err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	g.Wait()

	var failed []UploadFailure
	for _, fail := range failures {
		if fail != nil {
			failed = append(failed, *fail)
		}
	}
	if len(failed) > 0 {
		return nil, &Error{
			Kind:    KindCollaborator,
			Code:    CodeUploadFailed,
			Message: fmt.Sprintf("Failed to upload %d of %d previews", len(failed), len(docs)),
			Details: failed,
		}
	}

	resp = &api.PreviewCreativeResponse{
		Previews:  make([]api.Preview, len(docs)),
		ExpiresAt: s.now().Add(s.previewTTL()),
	}
	if s.InteractiveBaseURL != "" {
		resp.InteractiveURL = fmt.Sprintf("%s/preview/%s/interactive", trimSlash(s.InteractiveBaseURL), previewID)
	}
	for i, doc := range docs {
		render := api.PreviewRender{
			RenderID:   previewID + "-" + slugs[i],
			PreviewURL: urls[i],
			Role:       "primary",
			Dimensions: doc.Hints.EstimatedDimensions,
			Embedding:  doc.Embedding,
		}
		resp.Previews[i] = api.Preview{
			PreviewID: previewID,
			Renders:   []api.PreviewRender{render},
			Input:     doc.Input,
			Hints:     doc.Hints,
		}
	}

	s.logger().Info("previews generated", "preview_id", previewID, "format_id", f.FormatID.ID, "count", len(docs))
	return resp, nil
}

func (s *Server) previewTTL() time.Duration {
	if s.PreviewTTL > 0 {
		return s.PreviewTTL
	}
	return DefaultPreviewTTL
}

func uploadFailure(variant, key string, err error) *UploadFailure {
	fail := &UploadFailure{Variant: variant, Key: key, Message: err.Error()}
	var uerr *storage.UploadError
	if errors.As(err, &uerr) {
		fail.Code = uerr.Code
	}
	return fail
}
