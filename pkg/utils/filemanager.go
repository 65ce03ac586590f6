// =============================================================================
// Payment Command Converter - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the converter, including:
//   - Output file naming
//   - Atomic writes (temp file + rename) for payloads and the registry
//   - Diagnostics log generation for rejected rows
//   - Input archival after a successful conversion
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to the archive directory after a payload is written
//   - Failed inputs stay where they are
//   - Diagnostics logs are written next to the payload
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the converter.
type FileManager struct {
	// OutputDir is the directory where payloads and diagnostics logs are placed.
	OutputDir string

	// InputArchiveDir is the directory for archived input files.
	InputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: input_archive/2025/01/15/comandos.xlsx
	UseTimestampSubdirs bool

	// ArchiveOnSuccess determines whether inputs are archived after a
	// successful conversion.
	ArchiveOnSuccess bool

	// Now is the clock used for archive subdirectories and log names.
	Now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(outputDir, inputArchiveDir string, archiveOnSuccess, useTimestampSubdirs bool) *FileManager {
	return &FileManager{
		OutputDir:           outputDir,
		InputArchiveDir:     inputArchiveDir,
		UseTimestampSubdirs: useTimestampSubdirs,
		ArchiveOnSuccess:    archiveOnSuccess,
		Now:                 time.Now,
	}
}

func (fm *FileManager) now() time.Time {
	if fm.Now == nil {
		return time.Now()
	}
	return fm.Now()
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all configured directories if they don't exist.
// Empty entries are skipped.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{fm.OutputDir}
	if fm.ArchiveOnSuccess {
		dirs = append(dirs, fm.InputArchiveDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory. An archived
// file with the same name is never replaced; the new one gets a numeric
// suffix instead (janeiro_1.xlsx).
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file, or filePath unchanged when archiving is
//     disabled.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess || fm.InputArchiveDir == "" {
		return filePath, nil
	}

	archivePath, err := ReservePath(fm.getArchivePath(fm.InputArchiveDir, filePath))
	if err != nil {
		return "", fmt.Errorf("failed to reserve archive path: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Cross-device moves fall back to copy and delete.
		if err := CopyFile(filePath, archivePath); err != nil {
			os.Remove(archivePath)
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := fm.now()
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(archiveDir, fileName)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates an output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {time}      - Current time (HHMMSS)
//     {folha}     - Period code (from params)
//     {original}  - Original file name without extension (from params)
//   - params: A map of placeholder values.
//   - now: The time used for the time placeholders.
//
// RETURNS:
//   - The generated file name, always ending in ".xml".
//
// EXAMPLE:
//
//	format: "comandos_pagamento_{folha}_{timestamp}.xml"
//	params: {"folha": "012025"}
//	output: "comandos_pagamento_012025_20250131_140509.xml"
func GenerateOutputFileName(format string, params map[string]string, now time.Time) string {
	replacements := map[string]string{
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}

	if strings.Contains(format, "{uuid}") {
		replacements["{uuid}"] = uuid.New().String()
	}

	for key, value := range params {
		replacements["{"+key+"}"] = sanitizeFileComponent(value)
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if !strings.HasSuffix(strings.ToLower(result), ".xml") {
		result += ".xml"
	}

	return result
}

// maxReserveAttempts bounds the numeric suffixes tried by ReservePath.
const maxReserveAttempts = 1000

// ReservePath claims a file name that nobody else holds by creating it
// empty with O_EXCL. If path is taken, "_1", "_2", ... is appended before
// the extension. The caller then replaces the empty file (WriteFileAtomic,
// os.Rename) or removes it on failure.
//
// RETURNS:
//   - The reserved path.
//   - An error if the directory cannot be created or no free name is found.
func ReservePath(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	candidate := path
	for n := 1; n <= maxReserveAttempts; n++ {
		file, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			file.Close()
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to reserve %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}

	return "", fmt.Errorf("no free file name for %s", path)
}

// sanitizeFileComponent keeps placeholder values from introducing paths.
func sanitizeFileComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// =============================================================================
// ATOMIC WRITES
// =============================================================================

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path. Readers see either the old file or the complete new
// one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// =============================================================================
// DIAGNOSTICS LOG GENERATION
// =============================================================================

// DiagnosticsLogEntry represents one rejected row.
type DiagnosticsLogEntry struct {
	RowNumber    int
	FieldName    string
	FieldValue   string
	ErrorMessage string
}

// WriteDiagnosticsLog writes rejected-row entries to a text file.
//
// PARAMETERS:
//   - entries: The entries to write. Nothing is written when empty.
//   - sourceFile: The input file the entries came from.
//   - logPath: The file to create.
//   - now: The generation time printed in the header.
//
// RETURNS:
//   - An error if writing fails.
func WriteDiagnosticsLog(entries []DiagnosticsLogEntry, sourceFile, logPath string, now time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create diagnostics log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "Payment Command Converter - Rejected Rows\n"+
		"Generated: %s\n"+
		"Source:    %s\n"+
		"Rejected:  %d\n"+
		"================================================================================\n\n",
		now.Format("2006-01-02 15:04:05"),
		sourceFile,
		len(entries))

	for _, entry := range entries {
		fmt.Fprintf(writer, "Row %d\n", entry.RowNumber)
		if entry.FieldName != "" {
			fmt.Fprintf(writer, "  Field:   %s\n", entry.FieldName)
		}
		fmt.Fprintf(writer, "  Value:   %s\n", entry.FieldValue)
		fmt.Fprintf(writer, "  Message: %s\n\n", entry.ErrorMessage)
	}

	writer.WriteString("================================================================================\n" +
		"End of Log\n")

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush diagnostics log: %w", err)
	}

	return file.Sync()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// CopyFile copies a file from src to dst, replacing dst.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// TrimExtension returns the base name of path without its extension.
func TrimExtension(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
