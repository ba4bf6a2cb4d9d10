package instagram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"snpublisher/pkg/errors"
	"snpublisher/pkg/store"
)

const (
	uploadPhotoEndpoint    = "/rupload_igphoto/"
	configurePostEndpoint  = "/api/v1/media/configure/"
	configureStoryEndpoint = "/api/v1/media/configure_to_story/"
)

// Publish uploads one queued item through the authenticated session. The
// session guard must have reported healthy before this is called; errors
// come back classified so the publisher's retry policy can act on them.
func (c *Client) Publish(ctx context.Context, item *store.ContentItem) error {
	switch item.ContentType {
	case "post":
		return c.publishPhoto(ctx, item, configurePostEndpoint)
	case "story":
		return c.publishPhoto(ctx, item, configureStoryEndpoint)
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported content type %q", item.ContentType)
	}
}

// publishPhoto uploads the first media file then configures it with the
// caption. Multi-photo albums and video are handled upstream by splitting
// into per-file items.
func (c *Client) publishPhoto(ctx context.Context, item *store.ContentItem, configureEndpoint string) error {
	paths := strings.Split(item.MediaPaths, ",")
	if len(paths) == 0 || strings.TrimSpace(paths[0]) == "" {
		return errors.New(errors.ErrorTypeConfig, "content item has no media paths")
	}
	mediaPath := strings.TrimSpace(paths[0])

	uploadID, err := c.uploadPhoto(ctx, mediaPath)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("upload_id", uploadID)
	form.Set("caption", item.Caption)
	if item.LocationID != "" {
		form.Set("location", fmt.Sprintf(`{"facebook_places_id":%q}`, item.LocationID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+configureEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "failed to build configure request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.state != nil {
		req.Header.Set("X-CSRFToken", c.state.Cookies["csrftoken"])
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf(errors.ErrorTypeNetwork, "failed to read configure response: %v", err)
	}
	if err := c.classify(resp.StatusCode, body); err != nil {
		return err
	}

	c.log.InfoWithFields("media configured", map[string]interface{}{
		"upload_id": uploadID,
		"type":      item.ContentType,
	})
	return nil
}

// uploadPhoto streams the photo bytes to the upload endpoint and returns
// the upload id used by the configure call.
func (c *Client) uploadPhoto(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Newf(errors.ErrorTypeConfig, "failed to read media file: %v", err)
	}

	uploadID := fmt.Sprintf("%d", time.Now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+uploadPhotoEndpoint+uploadID, bytes.NewReader(data))
	if err != nil {
		return "", errors.Newf(errors.ErrorTypeUnknown, "failed to build upload request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Entity-Name", fmt.Sprintf("fb_uploader_%s", uploadID))
	req.Header.Set("X-Entity-Length", fmt.Sprintf("%d", len(data)))
	req.Header.Set("Offset", "0")
	req.Header.Set("X-Instagram-Rupload-Params",
		fmt.Sprintf(`{"media_type":1,"upload_id":%q}`, uploadID))

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Newf(errors.ErrorTypeNetwork, "failed to read upload response: %v", err)
	}
	if err := c.classify(resp.StatusCode, body); err != nil {
		return "", err
	}

	c.log.DebugWithFields("photo uploaded", map[string]interface{}{
		"path":      path,
		"upload_id": uploadID,
		"bytes":     len(data),
	})
	return uploadID, nil
}
