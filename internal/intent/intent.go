// Package intent classifies a finished response for implied capture
// requests: if the robot offered to take a photo or record a video, the
// client is told to open the camera. Classification is a lightweight
// bilingual keyword scan of the response text; video keywords take priority
// over photo keywords.
package intent

import "strings"

// Capture is the outcome of classifying a response.
type Capture string

// Classification outcomes.
const (
	CaptureNone  Capture = ""
	CapturePhoto Capture = "photo"
	CaptureVideo Capture = "video"
)

var videoKeywords = []string{
	"grabar un video",
	"grabo un video",
	"grabar un vídeo",
	"grabo un vídeo",
	"te grabo",
	"grabamos",
	"record a video",
	"recording a video",
	"take a video",
	"film you",
}

var photoKeywords = []string{
	"tomar una foto",
	"tomo una foto",
	"sacar una foto",
	"saco una foto",
	"hacer una foto",
	"hago una foto",
	"te hago una foto",
	"take a photo",
	"take a picture",
	"taking a photo",
	"snap a picture",
}

// ClassifyCapture scans text for capture intent. Matching is case-insensitive
// substring search; video wins when both kinds match.
func ClassifyCapture(text string) Capture {
	lower := strings.ToLower(text)
	for _, kw := range videoKeywords {
		if strings.Contains(lower, kw) {
			return CaptureVideo
		}
	}
	for _, kw := range photoKeywords {
		if strings.Contains(lower, kw) {
			return CapturePhoto
		}
	}
	return CaptureNone
}
