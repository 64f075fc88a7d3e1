// internal/scrapererr/cli.go - Error presentation for command-line output
package scrapererr

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes reported by the CLI. Zero is success, one is the catch-all.
const (
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitNetwork    = 3
	ExitParse      = 4
	ExitOutput     = 5
	ExitValidation = 6
	ExitRateLimit  = 7
)

// Formatter converts technical errors to user-facing messages.
type Formatter struct {
	showTechnical bool
}

// NewFormatter creates a Formatter. With verbose set, the raw error text is
// appended to the friendly message.
func NewFormatter(verbose bool) *Formatter {
	return &Formatter{showTechnical: verbose}
}

// GetUserFriendlyError converts technical errors to user-friendly messages
func (f *Formatter) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	var tplErr *TemplateError
	if errors.As(err, &tplErr) {
		return "Template Error",
			"The scraping template could not be loaded or is invalid.",
			[]string{
				"Check YAML indentation (use spaces, not tabs)",
				"Ensure every field has a label and a selector",
				"Run the validate command to see all problems at once",
			}
	}

	var selErr *SelectorSyntaxError
	if errors.As(err, &selErr) {
		return "Invalid Selector",
			fmt.Sprintf("The selector for field %q could not be parsed.", selErr.Field),
			[]string{
				"Check the selector syntax in the template",
				"Prefix XPath expressions with xpath: or set selectorKind",
				"Comma-separated alternatives must each be valid on their own",
			}
	}

	var reqErr *RequiredFieldError
	if errors.As(err, &reqErr) {
		return "Required Field Missing",
			fmt.Sprintf("The required field %q was not found on the page.", reqErr.Field),
			[]string{
				"Verify the element exists by inspecting the page",
				"The website structure might have changed",
				"Mark the field optional if it is not always present",
			}
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.StatusCode == 429 {
			return "Rate Limit Exceeded",
				"The website is rejecting requests because they arrive too quickly.",
				[]string{
					"Increase the delay between requests",
					"Enable randomDelays in the template",
					"Reduce concurrency for subpage fetches",
				}
		}
		return "Page Fetch Failed",
			fmt.Sprintf("Could not retrieve %s.", fetchErr.URL),
			[]string{
				"Check if the URL opens in a browser",
				"The server might be temporarily down",
				"Try again with headless browser rendering enabled",
			}
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") {
		return "Connection Timeout",
			"The request timed out while trying to connect to the website.",
			[]string{
				"Check your internet connection",
				"Increase pageLoadTimeoutSeconds in the template",
				"The website might be slow or experiencing issues",
			}
	}

	if strings.Contains(errStr, "no such host") {
		return "Domain Not Found",
			"Could not find the website domain.",
			[]string{
				"Check if the URL is spelled correctly",
				"Verify the domain exists by opening it in a browser",
				"Check your DNS settings",
			}
	}

	if strings.Contains(errStr, "connection refused") {
		return "Connection Refused",
			"The website server refused the connection.",
			[]string{
				"Check if the website is accessible in a browser",
				"The server might be temporarily down",
			}
	}

	if strings.Contains(errStr, "selector") {
		return "Element Not Found",
			"Could not find the specified element on the webpage.",
			[]string{
				"Check if the CSS selector is correct",
				"Verify the element exists on the page",
				"The website structure might have changed",
			}
	}

	if strings.Contains(errStr, "yaml") {
		return "Configuration Error",
			"The template file has invalid YAML syntax.",
			[]string{
				"Check YAML indentation (use spaces, not tabs)",
				"Ensure proper quoting of string values",
			}
	}

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return "Rate Limit Exceeded",
			"You're making requests too quickly.",
			[]string{
				"Reduce the scraping speed",
				"Add longer delays between requests",
			}
	}

	return "Unexpected Error",
		"An unexpected error occurred during the operation.",
		[]string{
			"Try running the command again",
			"Check the template file",
			"Verify your internet connection",
		}
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var tplErr *TemplateError
	if errors.As(err, &tplErr) {
		return ExitConfig
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.StatusCode == 429 {
			return ExitRateLimit
		}
		return ExitNetwork
	}
	var selErr *SelectorSyntaxError
	if errors.As(err, &selErr) {
		return ExitParse
	}
	var reqErr *RequiredFieldError
	if errors.As(err, &reqErr) {
		return ExitValidation
	}
	var outErr *OutputError
	if errors.As(err, &outErr) {
		return ExitOutput
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "config") || strings.Contains(errStr, "yaml") || strings.Contains(errStr, "template"):
		return ExitConfig
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429"):
		return ExitRateLimit
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") || strings.Contains(errStr, "host"):
		return ExitNetwork
	case strings.Contains(errStr, "parse") || strings.Contains(errStr, "selector"):
		return ExitParse
	case strings.Contains(errStr, "output") || strings.Contains(errStr, "write"):
		return ExitOutput
	case strings.Contains(errStr, "validation") || strings.Contains(errStr, "required"):
		return ExitValidation
	default:
		return ExitGeneral
	}
}

// FormatErrorForCLI formats error for command-line display
func (f *Formatter) FormatErrorForCLI(err error) string {
	title, message, suggestions := f.GetUserFriendlyError(err)

	output := fmt.Sprintf("Error: %s\n%s\n", title, message)

	if f.showTechnical {
		output += fmt.Sprintf("\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		output += "\nSuggestions:\n"
		for _, suggestion := range suggestions {
			output += fmt.Sprintf("  - %s\n", suggestion)
		}
	}

	return output
}
