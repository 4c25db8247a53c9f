package constants

import (
	"mime"
	"path/filepath"
	"strings"
)

// Strategy is the processing path selected for a document.
type Strategy string

const (
	Text        Strategy = "text"
	Office      Strategy = "office"
	PDF         Strategy = "pdf"
	Image       Strategy = "image"
	Spreadsheet Strategy = "spreadsheet"
)

// Strategies lists every strategy in a stable order.
var Strategies = []Strategy{Text, Office, PDF, Image, Spreadsheet}

// extStrategies maps a normalized extension to its strategy.
var extStrategies = map[string]Strategy{
	"txt":  Text,
	"text": Text,
	"md":   Text,
	"log":  Text,
	"html": Text,
	"htm":  Text,

	"csv":  Spreadsheet,
	"tsv":  Spreadsheet,
	"xls":  Spreadsheet,
	"xlsx": Spreadsheet,
	"xlsm": Spreadsheet,
	"ods":  Spreadsheet,

	"pdf": PDF,

	"doc":  Office,
	"docx": Office,
	"docm": Office,
	"odt":  Office,
	"rtf":  Office,
	"ppt":  Office,
	"pptx": Office,
	"pptm": Office,
	"odp":  Office,

	"bmp":  Image,
	"gif":  Image,
	"jpg":  Image,
	"jpeg": Image,
	"png":  Image,
	"tif":  Image,
	"tiff": Image,
	"webp": Image,
	"heic": Image,
	"heif": Image,
}

// mimeExts covers MIME types the stdlib table does not know about.
var mimeExts = map[string]string{
	"application/pdf":    "pdf",
	"text/plain":         "txt",
	"text/html":          "html",
	"text/csv":           "csv",
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/bmp":          "bmp",
	"image/tiff":         "tiff",
	"image/webp":         "webp",
	"image/heic":         "heic",
	"image/heif":         "heif",
	"application/rtf":    "rtf",
	"application/msword": "doc",
	"application/vnd.ms-excel":                                                  "xls",
	"application/vnd.ms-powerpoint":                                             "ppt",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/vnd.oasis.opendocument.text":                                   "odt",
	"application/vnd.oasis.opendocument.spreadsheet":                            "ods",
	"application/vnd.oasis.opendocument.presentation":                           "odp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ResolveExt turns a file_type tag (extension or MIME type) into a normalized
// extension. An empty tag falls back to the path's extension.
func ResolveExt(fileType, path string) string {
	ft := strings.TrimSpace(fileType)
	if ft == "" {
		return NormalizeExt(filepath.Ext(path))
	}
	if strings.Contains(ft, "/") {
		mt, _, err := mime.ParseMediaType(ft)
		if err != nil {
			return ""
		}
		if ext, ok := mimeExts[mt]; ok {
			return ext
		}
		if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
			return NormalizeExt(exts[0])
		}
		return ""
	}
	return NormalizeExt(ft)
}

// StrategyForExt returns the strategy for a normalized extension.
func StrategyForExt(ext string) (Strategy, bool) {
	s, ok := extStrategies[NormalizeExt(ext)]
	return s, ok
}

// StrategyFor resolves the strategy from a file_type tag and path.
func StrategyFor(fileType, path string) (Strategy, string, bool) {
	ext := ResolveExt(fileType, path)
	s, ok := extStrategies[ext]
	return s, ext, ok
}

// SupportedExt reports whether a path has an extension any strategy handles.
func SupportedExt(path string) bool {
	_, ok := extStrategies[NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHEICExt reports whether ext needs an external HEIC/HEIF conversion.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}

// IsHTMLExt reports whether ext is markup that should be reduced to text.
func IsHTMLExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "html", "htm":
		return true
	}
	return false
}
