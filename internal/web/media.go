package web

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lvcoi/ytdl-web/internal/db"
)

const (
	defaultMediaListLimit = 200
	maxMediaListLimit     = 500
)

type mediaItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Size      string `json:"size"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	Filename  string `json:"filename"`
	SourceURL string `json:"source_url,omitempty"`
}

type mediaListResponse struct {
	Items      []mediaItem `json:"items"`
	NextOffset *int        `json:"next_offset"`
}

// formatBytes formats a byte size into a human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// handleMediaList pages through the catalog when one is configured, else
// through the files in the output directory.
func (s *Server) handleMediaList(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parseMediaListPagination(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.catalog != nil {
		// fetch one extra row to learn whether another page exists
		records, err := s.catalog.List(r.Context(), limit+1, offset)
		if err != nil {
			s.log.WithError(err).Error("listing catalog")
			writeJSONError(w, http.StatusInternalServerError, "failed to read media catalog")
			return
		}
		var next *int
		if len(records) > limit {
			records = records[:limit]
			n := offset + limit
			next = &n
		}
		writeJSON(w, http.StatusOK, mediaListResponse{Items: catalogItems(records), NextOffset: next})
		return
	}

	allItems, err := listMediaFiles(s.mediaDir)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to read media directory")
		return
	}
	items, next := paginateMediaItems(allItems, offset, limit)
	writeJSON(w, http.StatusOK, mediaListResponse{Items: items, NextOffset: next})
}

func (s *Server) handleMediaFile(w http.ResponseWriter, r *http.Request) {
	reqPath := r.PathValue("filename")
	if reqPath == "" {
		s.handleMediaList(w, r)
		return
	}
	fullPath, status, err := resolveMediaPath(s.mediaDir, reqPath)
	if err != nil {
		writeJSONError(w, status, err.Error())
		return
	}
	if info, err := os.Stat(fullPath); err != nil || info.IsDir() {
		writeJSONError(w, http.StatusNotFound, "media not found")
		return
	}
	http.ServeFile(w, r, fullPath)
}

func catalogItems(records []db.MediaRecord) []mediaItem {
	out := make([]mediaItem, 0, len(records))
	for _, rec := range records {
		out = append(out, mediaItem{
			ID:        strconv.FormatInt(rec.ID, 10),
			Title:     rec.Title,
			Size:      formatBytes(rec.FileSize),
			Date:      rec.CreatedAt.Format("2006-01-02"),
			Type:      rec.MediaType,
			Filename:  rec.Filename,
			SourceURL: rec.SourceURL,
		})
	}
	return out
}

func parseMediaListPagination(r *http.Request) (offset int, limit int, err error) {
	offset = 0
	limit = defaultMediaListLimit

	q := r.URL.Query()
	if rawOffset := q.Get("offset"); rawOffset != "" {
		parsed, parseErr := strconv.Atoi(rawOffset)
		if parseErr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter")
		}
		offset = parsed
	}
	if rawLimit := q.Get("limit"); rawLimit != "" {
		parsed, parseErr := strconv.Atoi(rawLimit)
		if parseErr != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid limit parameter")
		}
		if parsed > maxMediaListLimit {
			parsed = maxMediaListLimit
		}
		limit = parsed
	}
	return offset, limit, nil
}

func listMediaFiles(mediaDir string) ([]mediaItem, error) {
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		return nil, err
	}

	type enrichedMediaItem struct {
		item    mediaItem
		modTime time.Time
	}

	items := make([]enrichedMediaItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		title := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		items = append(items, enrichedMediaItem{
			item: mediaItem{
				ID:       info.Name(),
				Title:    title,
				Size:     formatBytes(info.Size()),
				Date:     info.ModTime().Format("2006-01-02"),
				Type:     db.ClassifyMediaType("", filepath.Ext(info.Name())),
				Filename: info.Name(),
			},
			modTime: info.ModTime(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].modTime.Equal(items[j].modTime) {
			return items[i].item.Filename < items[j].item.Filename
		}
		return items[i].modTime.After(items[j].modTime)
	})

	out := make([]mediaItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.item)
	}
	return out, nil
}

func paginateMediaItems(items []mediaItem, offset int, limit int) ([]mediaItem, *int) {
	total := len(items)
	if offset >= total {
		return []mediaItem{}, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	page := append([]mediaItem(nil), items[offset:end]...)
	if end >= total {
		return page, nil
	}

	next := end
	return page, &next
}

func resolveMediaPath(mediaDir, reqPath string) (string, int, error) {
	cleaned := filepath.Clean(reqPath)
	if cleaned == "." || cleaned == "" {
		return "", http.StatusBadRequest, fmt.Errorf("invalid path")
	}
	if strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", http.StatusBadRequest, fmt.Errorf("invalid path")
	}

	fullPath := filepath.Join(mediaDir, cleaned)
	realMediaDir, err := resolveRealPath(mediaDir)
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("failed to resolve media directory")
	}
	realTargetPath, err := resolveRealPath(fullPath)
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("invalid path")
	}
	rel, err := filepath.Rel(realMediaDir, realTargetPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", http.StatusForbidden, fmt.Errorf("access denied")
	}
	return fullPath, 0, nil
}

func resolveRealPath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	realPath, err := filepath.EvalSymlinks(cleaned)
	if err == nil {
		return realPath, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(cleaned)
	if parent == cleaned {
		return "", err
	}

	realParent, parentErr := resolveRealPath(parent)
	if parentErr != nil {
		return "", parentErr
	}
	return filepath.Join(realParent, filepath.Base(cleaned)), nil
}
