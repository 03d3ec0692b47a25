package security

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// FileValidationResult contains the result of file validation
type FileValidationResult struct {
	Valid        bool   // Whether the file passed all validation checks
	Extension    string // Detected file extension
	DetectedMIME string // Detected MIME type
	Error        string // Error message if validation failed
}

// Magic byte signatures for allowed image types
var magicBytes = map[string][][]byte{
	".jpg":  {{0xFF, 0xD8, 0xFF}},
	".jpeg": {{0xFF, 0xD8, 0xFF}},
	".png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	".gif":  {{0x47, 0x49, 0x46, 0x38, 0x37, 0x61}, {0x47, 0x49, 0x46, 0x38, 0x39, 0x61}}, // GIF87a & GIF89a
}

var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// MaxAvatarBytes caps avatar uploads before decoding.
const MaxAvatarBytes = 5 << 20

// ValidateImage performs 3-layer validation of an avatar upload:
// 1. Extension whitelist check
// 2. Magic byte verification (content matches extension)
// 3. Sniffed MIME type whitelist
func ValidateImage(filename string, data []byte) FileValidationResult {
	result := FileValidationResult{DetectedMIME: http.DetectContentType(data)}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		result.Error = "file has no extension"
		return result
	}
	result.Extension = ext

	if _, ok := magicBytes[ext]; !ok {
		result.Error = "file extension not allowed: " + ext
		return result
	}
	if len(data) > MaxAvatarBytes {
		result.Error = "file too large"
		return result
	}
	if !validateMagicBytes(ext, data) {
		result.Error = "file content does not match extension"
		return result
	}
	if !imageMIMETypes[result.DetectedMIME] {
		result.Error = "MIME type not allowed: " + result.DetectedMIME
		return result
	}

	result.Valid = true
	return result
}

func validateMagicBytes(ext string, data []byte) bool {
	if len(data) < 4 {
		return false
	}
	for _, sig := range magicBytes[ext] {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// ValidateImageExtension checks only the extension (for quick pre-validation)
func ValidateImageExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return errors.New("file has no extension")
	}
	if _, ok := magicBytes[ext]; !ok {
		return errors.New("file extension not allowed: " + ext)
	}
	return nil
}
