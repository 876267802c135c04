package domain

import "time"

// Upload - дескриптор файла в объектном хранилище.
type Upload struct {
	SecureURL    string    `json:"secure_url"`
	PublicID     string    `json:"public_id"`
	Folder       string    `json:"folder"`
	ResourceType string    `json:"resource_type"`
	Format       string    `json:"format"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Bytes        int64     `json:"bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	ResourceTypeImage = "image"
	ResourceTypeAudio = "audio"
)

type UploadRequest struct {
	Data string `json:"data" binding:"required"`
}

type GalleryPage struct {
	Images     []*Upload `json:"images"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type Gif struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	PreviewURL    string    `json:"preview_url"`
	TenorURL      string    `json:"tenor_url,omitempty"`
	ShortTenorURL string    `json:"short_tenor_url,omitempty"`
	Description   string    `json:"description,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type GifPage struct {
	Results []*Gif `json:"results"`
	Next    string `json:"next,omitempty"`
}

// LinkPreview повторяет форму ответа link-preview-js.
type LinkPreview struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	SiteName    string   `json:"siteName"`
	Description string   `json:"description,omitempty"`
	MediaType   string   `json:"mediaType"`
	ContentType string   `json:"contentType,omitempty"`
	Images      []string `json:"images"`
	Videos      []string `json:"videos"`
	Favicons    []string `json:"favicons"`
	Charset     string   `json:"charset,omitempty"`
	Fallback    bool     `json:"-"`
}
