package models

// ConversionResult is what a converter hands back once the vendor job is ready.
type ConversionResult struct {
	Title       string `json:"title"`
	DownloadURL string `json:"downloadURL"`
	VideoID     string `json:"-"`
	Format      string `json:"-"`
}

// APIResponse is the envelope every JSON endpoint answers with.
// Failures carry only Error.
type APIResponse struct {
	Status  int    `json:"status,omitempty"`
	Success bool   `json:"success,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}
