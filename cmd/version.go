package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// AppVersion is overridden at build time with -ldflags "-X".
var AppVersion = "0.7.0"

const releasesURL = "https://api.github.com/repos/nulzo/llm-proxy/releases/latest"

type gitHubRelease struct {
	TagName string `json:"tag_name"`
}

// CheckForUpdates logs a warning when a newer release is published. Every
// failure is silent; the check must never hold up startup.
func CheckForUpdates(ctx context.Context, logger *zap.Logger, current string) {
	latest, err := latestRelease(ctx, &http.Client{Timeout: 2 * time.Second}, releasesURL)
	if err != nil {
		logger.Debug("Update check skipped", zap.Error(err))
		return
	}

	newer, err := isNewer(current, latest)
	if err != nil {
		logger.Debug("Update check skipped", zap.Error(err))
		return
	}

	if newer {
		logger.Warn("A newer version is available",
			zap.String("current", current),
			zap.String("latest", latest),
		)
	}
}

func latestRelease(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release lookup returned %d", resp.StatusCode)
	}

	var release gitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	return release.TagName, nil
}

func isNewer(current, candidate string) (bool, error) {
	cur, err := version.NewVersion(current)
	if err != nil {
		return false, err
	}
	next, err := version.NewVersion(candidate)
	if err != nil {
		return false, err
	}
	return cur.LessThan(next), nil
}
