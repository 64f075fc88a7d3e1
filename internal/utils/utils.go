// internal/utils/utils.go
package utils

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// NormalizeURL canonicalizes a URL so the same page compares equal regardless
// of host case, default ports, query ordering, fragments, or trailing slashes.
// Subpage correlation and record dedupe both key off this form.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Host = strings.ToLower(u.Host)

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = strings.TrimSuffix(u.Host, ":80")
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""

	return u.String(), nil
}

// HashURL creates a stable hash of a URL for deduplication keys.
func HashURL(url string) string {
	h := sha256.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// RecordFingerprint produces a stable identity for an extracted record by
// encoding its fields in sorted-key order and hashing the result. Records that
// differ only in map iteration order fingerprint identically.
func RecordFingerprint(record map[string]interface{}) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		if v, err := json.Marshal(record[k]); err == nil {
			b.Write(v)
		} else {
			fmt.Fprintf(&b, "%v", record[k])
		}
		b.WriteByte(';')
	}

	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}

// ExtractDomain extracts the host from a URL.
func ExtractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

// IsValidURL checks if a string parses as a URL with scheme and host.
func IsValidURL(str string) bool {
	u, err := url.Parse(str)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// IsAbsoluteHTTPURL reports whether a value is an absolute http(s) URL that
// could plausibly lead to a record's own page. Contact-scheme and in-page
// links are excluded so mailto anchors never become profile links.
func IsAbsoluteHTTPURL(str string) bool {
	lower := strings.ToLower(strings.TrimSpace(str))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	for _, skip := range []string{"mailto:", "tel:", "javascript:"} {
		if strings.Contains(lower, skip) {
			return false
		}
	}
	return !strings.HasSuffix(lower, "#")
}

// CleanFileName removes invalid characters from a filename.
func CleanFileName(name string) string {
	re := regexp.MustCompile(`[<>:"/\\|?*]`)
	cleaned := re.ReplaceAllString(name, "_")

	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, ".")

	if len(cleaned) > 200 {
		cleaned = cleaned[:200]
	}
	if cleaned == "" {
		cleaned = "output"
	}
	return cleaned
}

// TruncateString truncates a string to a maximum length.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// ParseContentType extracts the media type from a Content-Type header.
func ParseContentType(contentType string) string {
	parts := strings.Split(contentType, ";")
	if len(parts) > 0 {
		return strings.TrimSpace(parts[0])
	}
	return contentType
}

// IsTextContent checks if a content type represents text content.
func IsTextContent(contentType string) bool {
	textTypes := []string{
		"text/html",
		"text/plain",
		"text/xml",
		"application/xml",
		"application/xhtml+xml",
		"application/json",
	}

	ct := ParseContentType(contentType)
	for _, textType := range textTypes {
		if ct == textType {
			return true
		}
	}
	return strings.HasPrefix(ct, "text/")
}

// GenerateOutputFileName generates a filename based on URL and timestamp.
func GenerateOutputFileName(url string, format string) string {
	domain, err := ExtractDomain(url)
	if err != nil || domain == "" {
		domain = "output"
	}
	domain = CleanFileName(domain)
	timestamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", domain, timestamp, format)
}

// ReadURLsFromFile loads a batch URL list, one URL per line. Blank lines and
// #-comments are skipped; invalid URLs are logged and dropped rather than
// failing the whole batch.
func ReadURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer file.Close()

	logger := NewComponentLogger("utils")

	urls := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if verr := ValidateTargetURL(line); verr != nil {
			logger.Warn().Int("line", lineNum).Str("url", line).Msg(verr.Message)
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no valid URLs in %s", path)
	}
	return urls, nil
}
