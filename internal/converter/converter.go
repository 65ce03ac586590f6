// =============================================================================
// Payment Command Converter - Converter Module
// =============================================================================
//
// This module orchestrates the conversion of one spreadsheet into one
// payment-command payload.
//
// CONVERSION PIPELINE:
//   1. Pick the reader by file extension (.xlsx/.xlsm or .csv)
//   2. Read the sheet and run the record pipeline
//   3. Generate the ISO-8859-1 XML with the chosen signer and folha
//   4. Write the output file atomically
//   5. Write a diagnostics log when rows were rejected
//   6. Archive the input file (optional)
//
// Nothing is written unless step 3 succeeds, so a failed conversion never
// leaves a partial payload behind.
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/config"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/csvparser"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/logger"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xlsxparser"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xmlwriter"
	"github.com/ginjaninja78/comandos-pagamento-xml/pkg/utils"
)

var (
	// ErrUnsupportedFile is returned for extensions no reader handles.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("input file not found")

	// ErrEmptyWorkbook is returned when the input holds no data at all.
	ErrEmptyWorkbook = xlsxparser.ErrEmptyWorkbook

	// ErrInvalidWorkbook is returned when an .xlsx/.xlsm input is corrupt or
	// not a workbook at all.
	ErrInvalidWorkbook = xlsxparser.ErrInvalidWorkbook
)

// SupportedExtensions lists the input extensions LoadFile accepts.
var SupportedExtensions = []string{".xlsx", ".xlsm", ".csv"}

// =============================================================================
// LOADING
// =============================================================================

// ReadSheet reads the raw sheet from path with the reader matching its
// extension.
func ReadSheet(path string, csvSettings config.CSVSettings) (*types.Sheet, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFile, path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return xlsxparser.Read(path)
	case ".csv":
		sheet, err := csvparser.Read(path, csvSettings)
		if errors.Is(err, csvparser.ErrEmptyFile) {
			return nil, fmt.Errorf("%w: %v", ErrEmptyWorkbook, err)
		}
		return sheet, err
	default:
		return nil, fmt.Errorf("%w: %q (expected one of %s)", ErrUnsupportedFile, ext, strings.Join(SupportedExtensions, ", "))
	}
}

// LoadFile reads path and returns its records.
//
// PARAMETERS:
//   - path: An .xlsx, .xlsm or .csv file.
//   - csvSettings: Reader settings used for .csv input.
//
// RETURNS:
//   - One record per non-blank row, valid or rejected.
//   - ErrInputNotFound, ErrUnsupportedFile, ErrInvalidWorkbook,
//     ErrEmptyWorkbook or ErrMissingColumns (all wrapped) for whole-file
//     failures.
func LoadFile(path string, csvSettings config.CSVSettings) ([]types.CommandRecord, error) {
	sheet, err := ReadSheet(path, csvSettings)
	if err != nil {
		return nil, err
	}
	return ProcessSheet(sheet)
}

// =============================================================================
// REQUEST AND RESULT
// =============================================================================

// Request describes one conversion.
type Request struct {
	// InputPath is the spreadsheet to convert.
	InputPath string

	// Signer is the responsible party cited in the payload.
	Signer types.Responsible

	// Folha is the MMYYYY period code.
	Folha string

	// OutputPath overrides the generated output file name when set.
	OutputPath string

	// DryRun generates the XML without writing or archiving anything.
	DryRun bool
}

// Result represents the outcome of a conversion.
type Result struct {
	// FilePath is the input file that was processed.
	FilePath string

	// OutputFile is the written XML file. Empty on failure or dry run.
	OutputFile string

	// DiagnosticsFile is the rejected-rows log, if one was written.
	DiagnosticsFile string

	// ArchivePath is where the input was moved, if it was archived.
	ArchivePath string

	// XML holds the generated payload bytes (ISO-8859-1).
	XML []byte

	// Success indicates whether the conversion succeeded.
	Success bool

	// Error contains the error if the conversion failed.
	Error error

	// Summary counts the records read.
	Summary Summary

	// Diagnostics lists the rejected rows.
	Diagnostics []Diagnostic

	// Groups is the number of trigrama blocks in the payload.
	Groups int

	// ProcessingTime is the time taken by the conversion.
	ProcessingTime time.Duration
}

// =============================================================================
// CONVERTER
// =============================================================================

// Converter runs conversions with a fixed configuration.
type Converter struct {
	mainConfig *config.MainConfig
	files      *utils.FileManager
	now        func() time.Time
}

// New creates a Converter for the given configuration.
func New(mainConfig *config.MainConfig) *Converter {
	return &Converter{
		mainConfig: mainConfig,
		files:      utils.NewFileManager(
			mainConfig.OutputDir,
			mainConfig.InputArchiveDir,
			mainConfig.ArchiveOnSuccess,
			mainConfig.ArchiveTimestampSubdirs,
		),
		now:        time.Now,
	}
}

// WithClock replaces the clock used for payload timestamps and file names.
func (c *Converter) WithClock(now func() time.Time) *Converter {
	c.now = now
	c.files.Now = now
	return c
}

// Run executes the conversion pipeline for one request.
//
// PROCESSING STEPS:
//  1. Load and validate the records
//  2. Generate the XML document
//  3. Write the output file
//  4. Write the diagnostics log
//  5. Archive the input file
func (c *Converter) Run(req Request) Result {
	startTime := time.Now()
	result := Result{FilePath: req.InputPath}
	log := logger.WithContext(map[string]interface{}{"file": req.InputPath, "folha": req.Folha})

	// =========================================================================
	// STEP 1: LOAD RECORDS
	// =========================================================================

	records, err := LoadFile(req.InputPath, c.mainConfig.CSV)
	if err != nil {
		result.Error = fmt.Errorf("failed to load input: %w", err)
		log.Error("Conversion failed", result.Error)
		return result
	}

	result.Summary = Summarize(records)
	result.Diagnostics = Diagnostics(records)
	log.Info("Records processed", map[string]interface{}{
		"total":   result.Summary.Total,
		"valid":   result.Summary.Valid,
		"invalid": result.Summary.Invalid,
	})

	// =========================================================================
	// STEP 2: GENERATE XML
	// =========================================================================

	options := xmlwriter.DefaultGenerateOptions()
	options.Now = c.now

	xmlDoc, err := xmlwriter.GenerateWithOptions(records, req.Signer, req.Folha, options)
	if err != nil {
		result.Error = fmt.Errorf("failed to generate XML: %w", err)
		log.Error("Conversion failed", result.Error)
		return result
	}

	result.XML = xmlDoc
	result.Groups = len(xmlwriter.GroupByTrigrama(records))
	log.Info("XML generated", map[string]interface{}{
		"records":   result.Summary.Valid,
		"trigramas": result.Groups,
	})

	if req.DryRun {
		result.Success = true
		result.ProcessingTime = time.Since(startTime)
		return result
	}

	// =========================================================================
	// STEP 3: WRITE OUTPUT FILE
	// =========================================================================

	if err := c.files.EnsureDirectories(); err != nil {
		result.Error = err
		log.Error("Conversion failed", err)
		return result
	}

	// A generated name never replaces an existing payload; an explicit
	// OutputPath is the caller's choice and is overwritten.
	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath, err = utils.ReservePath(c.outputPath(req))
		if err != nil {
			result.Error = fmt.Errorf("failed to reserve output name: %w", err)
			log.Error("Conversion failed", result.Error)
			return result
		}
	}

	if err := utils.WriteFileAtomic(outputPath, xmlDoc, 0644); err != nil {
		if req.OutputPath == "" {
			os.Remove(outputPath)
		}
		result.Error = fmt.Errorf("failed to write output: %w", err)
		log.Error("Conversion failed", result.Error)
		return result
	}

	result.OutputFile = outputPath
	log.Info("Output written", map[string]interface{}{"output": outputPath})

	// =========================================================================
	// STEP 4: DIAGNOSTICS LOG
	// =========================================================================
	// The payload is already on disk; failures from here on are logged only.

	if len(result.Diagnostics) > 0 {
		logPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_rejeitados.log"
		if err := utils.WriteDiagnosticsLog(diagnosticsLogEntries(result.Diagnostics), req.InputPath, logPath, c.now()); err != nil {
			log.Warn("Failed to write diagnostics log", map[string]interface{}{"error": err.Error()})
		} else {
			result.DiagnosticsFile = logPath
		}
	}

	// =========================================================================
	// STEP 5: ARCHIVE INPUT
	// =========================================================================

	if c.mainConfig.ArchiveOnSuccess {
		archived, err := c.files.ArchiveInputFile(req.InputPath)
		if err != nil {
			log.Warn("Failed to archive input", map[string]interface{}{"error": err.Error()})
		} else {
			result.ArchivePath = archived
		}
	}

	result.Success = true
	result.ProcessingTime = time.Since(startTime)

	return result
}

// outputPath builds the output file path from the configured name format.
func (c *Converter) outputPath(req Request) string {
	name := utils.GenerateOutputFileName(c.mainConfig.OutputFileFormat, map[string]string{
		"folha":    req.Folha,
		"original": utils.TrimExtension(req.InputPath),
	}, c.now())
	return filepath.Join(c.mainConfig.OutputDir, name)
}

func diagnosticsLogEntries(diags []Diagnostic) []utils.DiagnosticsLogEntry {
	entries := make([]utils.DiagnosticsLogEntry, len(diags))
	for i, d := range diags {
		entries[i] = utils.DiagnosticsLogEntry{
			RowNumber:    d.Row,
			FieldName:    d.Field,
			FieldValue:   d.Value,
			ErrorMessage: d.Message,
		}
	}
	return entries
}
