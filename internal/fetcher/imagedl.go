package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/thurstonsan/anypod/internal/apperrors"
)

// DownloadImageHTTP fetches the resource at srcURL and writes it verbatim to
// destPath, creating or truncating the file. A no-op when srcURL is empty.
func DownloadImageHTTP(ctx context.Context, srcURL, destPath string) error {
	if srcURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return apperrors.NewImageDownloadError("", "", "building image request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperrors.NewImageDownloadError("", "", "fetching image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewImageDownloadError("", "", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return apperrors.NewImageDownloadError("", "", "creating image destination", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return apperrors.NewImageDownloadError("", "", "writing image", err)
	}
	return nil
}
