package core

// validation.go holds the three independent input checks run before any
// generation request is built:
//  1. Theme text for text-modality models
//  2. Uploaded CSV for file-modality models (extension, then structure)
//  3. Output file name when download is enabled
//
// Each check returns a ValidationResult. Results are produced fresh on every
// pass and are never persisted.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Form field names used in ValidationResult.Field.
const (
	FieldTheme    = "theme"
	FieldFile     = "file"
	FieldFileName = "outputFileName"
)

// MaxThemeLength is the maximum theme length in characters.
const MaxThemeLength = 500

// MinDataRows is the minimum number of non-blank rows required after the header.
const MinDataRows = 2

var fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationResult is the outcome of validating one field.
type ValidationResult struct {
	Field   string
	Valid   bool
	Kind    Kind   // Empty when Valid
	Message string // Empty when Valid
	Cause   error  // Underlying parser error for ParseFailure
}

// Err returns the result as an *Error, or nil when valid.
func (v ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	return &Error{Kind: v.Kind, Field: v.Field, Message: v.Message, Err: v.Cause}
}

func valid(field string) ValidationResult {
	return ValidationResult{Field: field, Valid: true}
}

func invalid(field string, kind Kind, message string) ValidationResult {
	return ValidationResult{Field: field, Kind: kind, Message: message}
}

// ValidationErrors is returned by Submit when validation blocks a submission.
type ValidationErrors []ValidationResult

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, r := range v {
		if !r.Valid {
			parts = append(parts, r.Err().Error())
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual field errors to errors.Is / errors.As.
func (v ValidationErrors) Unwrap() []error {
	var errs []error
	for _, r := range v {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ValidateTheme checks theme text for a text-modality model.
func ValidateTheme(text string) ValidationResult {
	if strings.TrimSpace(text) == "" {
		return invalid(FieldTheme, KindEmptyInput, "Please enter a theme.")
	}
	if utf8.RuneCountInString(text) > MaxThemeLength {
		return invalid(FieldTheme, KindTooLong,
			fmt.Sprintf("Theme must be %d characters or fewer.", MaxThemeLength))
	}
	return valid(FieldTheme)
}

// ValidateUploadedFile checks the file extension and then parses the file,
// requiring a header row followed by at least MinDataRows non-blank rows.
// The checks short-circuit on the first failure. Reading the content honours
// ctx. On failure the caller must drop the file so it cannot be submitted.
func ValidateUploadedFile(ctx context.Context, f UploadedFile) ValidationResult {
	if f == nil {
		return invalid(FieldFile, KindEmptyInput, "Please select a CSV file.")
	}

	if !strings.HasSuffix(strings.ToLower(f.Name()), ".csv") {
		return invalid(FieldFile, KindInvalidExtension, "Only .csv files are accepted.")
	}

	dataRows, err := countDataRows(ctx, f)
	if err != nil {
		res := invalid(FieldFile, KindParseFailure, fmt.Sprintf("Could not read CSV: %v", err))
		res.Cause = err
		return res
	}

	if dataRows < MinDataRows {
		return invalid(FieldFile, KindInsufficientRows,
			fmt.Sprintf("The CSV must have a header and at least %d data rows (found %d).", MinDataRows, dataRows))
	}

	return valid(FieldFile)
}

// ValidateOutputFileName checks the download name. Callers only evaluate it
// while download is enabled.
func ValidateOutputFileName(name string) ValidationResult {
	if strings.TrimSpace(name) == "" {
		return invalid(FieldFileName, KindEmptyName, "Please enter a file name.")
	}
	if !fileNamePattern.MatchString(name) {
		return invalid(FieldFileName, KindInvalidCharacters,
			"File name may only contain letters, numbers, underscores and hyphens.")
	}
	return valid(FieldFileName)
}

// countDataRows returns the number of non-blank rows after the header.
func countDataRows(ctx context.Context, f UploadedFile) (int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return 0, fmt.Errorf("encoding error: file is not valid UTF-8")
	}

	rows := 0
	err = eachRecord(ctx, NewBOMSkippingReader(bytes.NewReader(data)), func([]string) bool {
		rows++
		return true
	})
	if err != nil {
		return 0, err
	}

	// First non-blank record is the header.
	if rows == 0 {
		return 0, nil
	}
	return rows - 1, nil
}
